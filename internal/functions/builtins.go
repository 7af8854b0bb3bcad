package functions

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trackly/internal/domain"
	"trackly/internal/errs"
	"trackly/internal/session"
	"trackly/internal/settings"
	"trackly/internal/users"
)

type CreateUserInput struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

type CreateUserResult struct {
	User     domain.User `json:"user"`
	Password string      `json:"password"`
}

// CreateUser issues an account with a generated password. Admin only.
func CreateUser(svc *users.Service) Func {
	return func(ctx context.Context, sess session.Session, payload json.RawMessage) (any, error) {
		if err := sess.RequireAdmin("create users"); err != nil {
			return nil, err
		}
		var in CreateUserInput
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		if in.Role == "" {
			in.Role = domain.RoleUser
		}
		password, err := GeneratePassword()
		if err != nil {
			return nil, err
		}
		u, err := svc.Create(ctx, users.CreateOptions{Name: in.Name, Email: in.Email, Role: in.Role, Password: password})
		if err != nil {
			return nil, err
		}
		return CreateUserResult{User: users.Public(u), Password: password}, nil
	}
}

// GeneratePassword returns 18 random bytes as URL-safe base64.
func GeneratePassword() (string, error) {
	b := make([]byte, 18)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate password: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// IssueTracker talks to a Jira-compatible REST API.
type IssueTracker struct {
	BaseURL  string
	User     string
	APIToken string
	HTTP     *http.Client
}

type Issue struct {
	Key      string `json:"key"`
	Summary  string `json:"summary"`
	Status   string `json:"status"`
	Assignee string `json:"assignee,omitempty"`
	URL      string `json:"url"`
}

func (c IssueTracker) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}

func (c IssueTracker) Issue(ctx context.Context, key string) (Issue, error) {
	if c.BaseURL == "" {
		return Issue{}, fmt.Errorf("issue tracker base url not configured")
	}
	base := strings.TrimRight(c.BaseURL, "/")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/rest/api/2/issue/"+url.PathEscape(key)+"?fields=summary,status,assignee", nil)
	if err != nil {
		return Issue{}, err
	}
	req.Header.Set("Accept", "application/json")
	if c.User != "" || c.APIToken != "" {
		req.SetBasicAuth(c.User, c.APIToken)
	}
	resp, err := c.client().Do(req)
	if err != nil {
		return Issue{}, fmt.Errorf("fetch issue %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return Issue{}, errs.Invalid("key", "issue %s not found", key)
	}
	if resp.StatusCode >= 300 {
		return Issue{}, fmt.Errorf("fetch issue %s: status %d", key, resp.StatusCode)
	}
	var body struct {
		Key    string `json:"key"`
		Fields struct {
			Summary string `json:"summary"`
			Status  struct {
				Name string `json:"name"`
			} `json:"status"`
			Assignee *struct {
				DisplayName string `json:"displayName"`
			} `json:"assignee"`
		} `json:"fields"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Issue{}, fmt.Errorf("decode issue %s: %w", key, err)
	}
	out := Issue{Key: body.Key, Summary: body.Fields.Summary, Status: body.Fields.Status.Name, URL: base + "/browse/" + body.Key}
	if body.Fields.Assignee != nil {
		out.Assignee = body.Fields.Assignee.DisplayName
	}
	return out, nil
}

// FetchIssue looks up an issue while the jiraIntegration setting is on.
func FetchIssue(tracker IssueTracker, set *settings.Service) Func {
	return func(ctx context.Context, sess session.Session, payload json.RawMessage) (any, error) {
		cfg, err := set.Get(ctx)
		if err != nil {
			return nil, err
		}
		if !cfg.JiraIntegration {
			return nil, errs.Invalid("", "jira integration is disabled")
		}
		var in struct {
			Key string `json:"key"`
		}
		if err := decode(payload, &in); err != nil {
			return nil, err
		}
		in.Key = strings.ToUpper(strings.TrimSpace(in.Key))
		if in.Key == "" {
			return nil, errs.Invalid("key", "is required")
		}
		return tracker.Issue(ctx, in.Key)
	}
}
