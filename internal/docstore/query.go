package docstore

import (
	"fmt"
	"regexp"
)

type Filter struct {
	Field string
	Value any
}

type Order struct {
	Field string
	Desc  bool
}

// Query selects documents of one collection by field equality.
type Query struct {
	Collection string
	Filters    []Filter
	Orders     []Order
	Limit      int
}

func Collection(name string) Query {
	return Query{Collection: name}
}

func (q Query) Where(field string, value any) Query {
	q.Filters = append(append([]Filter(nil), q.Filters...), Filter{Field: field, Value: value})
	return q
}

func (q Query) OrderBy(field string, desc bool) Query {
	q.Orders = append(append([]Order(nil), q.Orders...), Order{Field: field, Desc: desc})
	return q
}

func (q Query) Take(n int) Query {
	q.Limit = n
	return q
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

func (q Query) validate() error {
	if q.Collection == "" {
		return fmt.Errorf("query collection is required")
	}
	for _, f := range q.Filters {
		if !fieldPattern.MatchString(f.Field) {
			return fmt.Errorf("invalid filter field %q", f.Field)
		}
	}
	for _, o := range q.Orders {
		if !fieldPattern.MatchString(o.Field) {
			return fmt.Errorf("invalid order field %q", o.Field)
		}
	}
	if q.Limit < 0 {
		return fmt.Errorf("query limit must be >= 0")
	}
	return nil
}

func jsonPath(field string) string {
	return "$." + field
}

// sqlValue maps a filter value onto what json_extract yields for it.
func sqlValue(v any) any {
	switch t := v.(type) {
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return v
	}
}
