package tracklysdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Trackly HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v1",
		Timeout:  10 * time.Second,
	}
}

type User struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

type Settings struct {
	InactivityAlerts  bool `json:"inactivityAlerts"`
	PushNotifications bool `json:"pushNotifications"`
	JiraIntegration   bool `json:"jiraIntegration"`
	KanbanEnabled     bool `json:"kanbanEnabled"`
}

// Login is returned by sign-in.
type Login struct {
	Token     string `json:"token"`
	ExpiresAt string `json:"expiresAt"`
	User      User   `json:"user"`
}

type Me struct {
	User     User     `json:"user"`
	Settings Settings `json:"settings"`
}

// Record represents a time record (partial).
type Record struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	Date        string  `json:"date"`
	Hours       float64 `json:"hours"`
	Project     string  `json:"project,omitempty"`
	Description string  `json:"description"`
	Deleted     bool    `json:"deleted"`
	ActionType  string  `json:"actionType"`
	CreatedBy   string  `json:"createdBy"`
}

type Summary struct {
	UserID     string             `json:"userId"`
	Month      string             `json:"month"`
	DayTotals  map[string]float64 `json:"dayTotals"`
	MarkedDays []string           `json:"markedDays"`
	Metrics    struct {
		Total           float64 `json:"total"`
		Average         float64 `json:"average"`
		DaysWorked      int     `json:"daysWorked"`
		MaxDayHours     float64 `json:"maxDayHours"`
		ProgressPercent int     `json:"progressPercent"`
	} `json:"metrics"`
}

type Inactivity struct {
	UserID       string `json:"userId"`
	LastActivity string `json:"lastActivity"`
	LastDate     string `json:"lastDate"`
	Days         int    `json:"days"`
	Inactive     bool   `json:"inactive"`
	NeverActive  bool   `json:"neverActive"`
}

type Status struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Label  string `json:"label"`
	Order  int    `json:"order"`
	Active bool   `json:"active"`
}

type WorkItem struct {
	ID         string `json:"id"`
	Title      string `json:"title"`
	Status     string `json:"status"`
	Priority   string `json:"priority"`
	AssignedTo string `json:"assignedTo,omitempty"`
	Active     bool   `json:"active"`
}

type Report struct {
	ID          string  `json:"id"`
	UserID      string  `json:"userId"`
	UserName    string  `json:"userName"`
	Month       string  `json:"month"`
	TotalHours  float64 `json:"totalHours"`
	Status      string  `json:"status"`
	AdminNote   string  `json:"adminNote,omitempty"`
	SubmittedAt string  `json:"submittedAt"`
	ReviewedBy  string  `json:"reviewedBy,omitempty"`
}

type UserMonth struct {
	UserID       string  `json:"userId"`
	UserName     string  `json:"userName"`
	Email        string  `json:"email"`
	Summary      Summary `json:"summary"`
	InactiveDays int     `json:"inactiveDays"`
	Inactive     bool    `json:"inactive"`
	NeverActive  bool    `json:"neverActive"`
	ReportStatus string  `json:"reportStatus,omitempty"`
}

type Holidays struct {
	Year int      `json:"year"`
	Days []string `json:"days"`
}

// Event represents a log entry.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	Collection string `json:"collection"`
	DocID      string `json:"docId"`
	ActorID    string `json:"actorId"`
	Payload    string `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"nextCursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Login signs in and keeps the token for later calls.
func (c *Client) Login(ctx context.Context, email, password string) (Login, error) {
	var resp Login
	err := c.do(ctx, http.MethodPost, "auth/login", map[string]any{"email": email, "password": password}, &resp)
	if err == nil {
		c.BearerToken = resp.Token
	}
	return resp, err
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "auth/logout", nil, nil)
}

func (c *Client) Me(ctx context.Context) (Me, error) {
	var resp Me
	err := c.do(ctx, http.MethodGet, "me", nil, &resp)
	return resp, err
}

// CreateUser creates an account. Admin only.
func (c *Client) CreateUser(ctx context.Context, name, email, role, password string) (User, error) {
	body := map[string]any{"name": name, "email": email, "role": role, "password": password}
	var resp User
	err := c.do(ctx, http.MethodPost, "users", body, &resp)
	return resp, err
}

// LogHours records hours for the signed-in user.
func (c *Client) LogHours(ctx context.Context, date string, hours float64, description string) (Record, error) {
	body := map[string]any{"date": date, "hours": hours, "description": description}
	var resp Record
	err := c.do(ctx, http.MethodPost, "records", body, &resp)
	return resp, err
}

// Records lists records; an empty userID means the signed-in user.
func (c *Client) Records(ctx context.Context, userID, month string, includeDeleted bool) ([]Record, error) {
	q := url.Values{}
	if userID != "" {
		q.Set("userId", userID)
	}
	if month != "" {
		q.Set("month", month)
	}
	if includeDeleted {
		q.Set("includeDeleted", "true")
	}
	var resp []Record
	err := c.do(ctx, http.MethodGet, withQuery("records", q), nil, &resp)
	return resp, err
}

// EditRecord patches the given fields of a record.
func (c *Client) EditRecord(ctx context.Context, id string, fields map[string]any) (Record, error) {
	var resp Record
	err := c.do(ctx, http.MethodPatch, "records/"+url.PathEscape(id), fields, &resp)
	return resp, err
}

func (c *Client) DeleteRecord(ctx context.Context, id string) (Record, error) {
	var resp Record
	err := c.do(ctx, http.MethodDelete, "records/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

func (c *Client) RestoreRecord(ctx context.Context, id string) (Record, error) {
	var resp Record
	err := c.do(ctx, http.MethodPost, "records/"+url.PathEscape(id)+"/restore", nil, &resp)
	return resp, err
}

// Summary returns month totals; userID may be "me".
func (c *Client) Summary(ctx context.Context, userID, month string) (Summary, error) {
	var resp Summary
	endpoint := withQuery(fmt.Sprintf("users/%s/summary", url.PathEscape(userID)), url.Values{"month": {month}})
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) Inactivity(ctx context.Context, userID string) (Inactivity, error) {
	var resp Inactivity
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("users/%s/inactivity", url.PathEscape(userID)), nil, &resp)
	return resp, err
}

func (c *Client) Statuses(ctx context.Context) ([]Status, error) {
	var resp []Status
	err := c.do(ctx, http.MethodGet, "statuses", nil, &resp)
	return resp, err
}

func (c *Client) CreateStatus(ctx context.Context, key, label string) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodPost, "statuses", map[string]any{"key": key, "label": label}, &resp)
	return resp, err
}

func (c *Client) ToggleStatus(ctx context.Context, id string) (Status, error) {
	var resp Status
	err := c.do(ctx, http.MethodPost, "statuses/"+url.PathEscape(id)+"/toggle", nil, &resp)
	return resp, err
}

// ReorderStatuses sets the order of every status.
func (c *Client) ReorderStatuses(ctx context.Context, ids []string) ([]Status, error) {
	var resp []Status
	err := c.do(ctx, http.MethodPut, "statuses/order", map[string]any{"ids": ids}, &resp)
	return resp, err
}

func (c *Client) WorkItems(ctx context.Context, status string) ([]WorkItem, error) {
	q := url.Values{}
	if status != "" {
		q.Set("status", status)
	}
	var resp []WorkItem
	err := c.do(ctx, http.MethodGet, withQuery("workItems", q), nil, &resp)
	return resp, err
}

func (c *Client) CreateWorkItem(ctx context.Context, title, status string) (WorkItem, error) {
	body := map[string]any{"title": title}
	if status != "" {
		body["status"] = status
	}
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, "workItems", body, &resp)
	return resp, err
}

func (c *Client) MoveWorkItem(ctx context.Context, id, status string) (WorkItem, error) {
	var resp WorkItem
	err := c.do(ctx, http.MethodPost, "workItems/"+url.PathEscape(id)+"/move", map[string]any{"status": status}, &resp)
	return resp, err
}

// SubmitReport submits month; an empty userID means the signed-in user.
func (c *Client) SubmitReport(ctx context.Context, userID, month string) (Report, error) {
	body := map[string]any{"month": month}
	if userID != "" {
		body["userId"] = userID
	}
	var resp Report
	err := c.do(ctx, http.MethodPost, "reports", body, &resp)
	return resp, err
}

func (c *Client) Reports(ctx context.Context, month, status string) ([]Report, error) {
	q := url.Values{}
	if month != "" {
		q.Set("month", month)
	}
	if status != "" {
		q.Set("status", status)
	}
	var resp []Report
	err := c.do(ctx, http.MethodGet, withQuery("reports", q), nil, &resp)
	return resp, err
}

func (c *Client) ReviewReport(ctx context.Context, id, decision, note string) (Report, error) {
	var resp Report
	body := map[string]any{"decision": decision, "note": note}
	err := c.do(ctx, http.MethodPost, "reports/"+url.PathEscape(id)+"/review", body, &resp)
	return resp, err
}

func (c *Client) Stats(ctx context.Context, month string) ([]UserMonth, error) {
	var resp []UserMonth
	err := c.do(ctx, http.MethodGet, withQuery("stats", url.Values{"month": {month}}), nil, &resp)
	return resp, err
}

// ExportStats downloads the month workbook.
func (c *Client) ExportStats(ctx context.Context, month string) ([]byte, error) {
	var buf bytes.Buffer
	err := c.do(ctx, http.MethodGet, withQuery("stats/export", url.Values{"month": {month}}), nil, &buf)
	return buf.Bytes(), err
}

func (c *Client) Holidays(ctx context.Context, year int) (Holidays, error) {
	var resp Holidays
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("holidays/%d", year), nil, &resp)
	return resp, err
}

func (c *Client) SetHolidays(ctx context.Context, year int, days []string) (Holidays, error) {
	var resp Holidays
	err := c.do(ctx, http.MethodPut, fmt.Sprintf("holidays/%d", year), map[string]any{"days": days}, &resp)
	return resp, err
}

func (c *Client) Settings(ctx context.Context) (Settings, error) {
	var resp Settings
	err := c.do(ctx, http.MethodGet, "settings", nil, &resp)
	return resp, err
}

// UpdateSettings patches the named toggles.
func (c *Client) UpdateSettings(ctx context.Context, toggles map[string]bool) (Settings, error) {
	var resp Settings
	err := c.do(ctx, http.MethodPatch, "settings", toggles, &resp)
	return resp, err
}

// Invoke calls a server function and decodes its result into out.
func (c *Client) Invoke(ctx context.Context, name string, payload any, out any) error {
	if payload == nil {
		payload = map[string]any{}
	}
	return c.do(ctx, http.MethodPost, "functions/"+url.PathEscape(name), payload, out)
}

// RequestPermission returns "granted" or "denied".
func (c *Client) RequestPermission(ctx context.Context) (string, error) {
	var resp struct {
		Permission string `json:"permission"`
	}
	err := c.do(ctx, http.MethodPost, "notifications/permission", nil, &resp)
	return resp.Permission, err
}

func (c *Client) DeliveryToken(ctx context.Context) (string, error) {
	var resp struct {
		Token string `json:"token"`
	}
	err := c.do(ctx, http.MethodGet, "notifications/token", nil, &resp)
	return resp.Token, err
}

// EventsPage returns a paginated event listing, newest first.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, withQuery("events", q), nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if w, ok := out.(io.Writer); ok {
		_, err := io.Copy(w, resp.Body)
		return err
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func withQuery(endpoint string, q url.Values) string {
	if len(q) == 0 {
		return endpoint
	}
	return endpoint + "?" + q.Encode()
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if c.BasePath != "" {
		base += "/" + strings.Trim(c.BasePath, "/")
	}
	return base
}
