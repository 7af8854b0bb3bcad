package server

import (
	"trackly/internal/domain"
	"trackly/internal/hours"
)

// Request payloads

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type CreateUserRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Role     string `json:"role,omitempty" enum:"admin,user"`
	Password string `json:"password"`
}

type SetActiveRequest struct {
	Active bool `json:"active"`
}

type LogHoursRequest struct {
	UserID      string  `json:"userId,omitempty" doc:"Defaults to the signed-in user"`
	Date        string  `json:"date" format:"date"`
	Hours       float64 `json:"hours"`
	Project     string  `json:"project,omitempty"`
	TaskID      string  `json:"taskId,omitempty"`
	TaskTypeID  string  `json:"taskTypeId,omitempty"`
	JiraIssue   string  `json:"jiraIssue,omitempty"`
	Description string  `json:"description,omitempty"`
}

type EditRecordRequest struct {
	Date        *string  `json:"date,omitempty" format:"date"`
	Hours       *float64 `json:"hours,omitempty"`
	Project     *string  `json:"project,omitempty"`
	TaskID      *string  `json:"taskId,omitempty"`
	TaskTypeID  *string  `json:"taskTypeId,omitempty"`
	JiraIssue   *string  `json:"jiraIssue,omitempty"`
	Description *string  `json:"description,omitempty"`
}

type CreateStatusRequest struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type UpdateStatusRequest struct {
	Label string `json:"label"`
}

type ReorderStatusesRequest struct {
	IDs []string `json:"ids"`
}

type CreateWorkItemRequest struct {
	Title         string   `json:"title"`
	Description   string   `json:"description,omitempty"`
	Status        string   `json:"status,omitempty"`
	Priority      string   `json:"priority,omitempty" enum:"low,medium,high"`
	ProjectID     string   `json:"projectId,omitempty"`
	AssignedTo    string   `json:"assignedTo,omitempty"`
	EstimateHours *float64 `json:"estimateHours,omitempty"`
}

type UpdateWorkItemRequest struct {
	Title         *string  `json:"title,omitempty"`
	Description   *string  `json:"description,omitempty"`
	Priority      *string  `json:"priority,omitempty" enum:"low,medium,high"`
	ProjectID     *string  `json:"projectId,omitempty"`
	AssignedTo    *string  `json:"assignedTo,omitempty"`
	EstimateHours *float64 `json:"estimateHours,omitempty"`
	ActualHours   *float64 `json:"actualHours,omitempty"`
	Active        *bool    `json:"active,omitempty"`
}

type MoveWorkItemRequest struct {
	Status string `json:"status"`
}

type SubmitReportRequest struct {
	UserID string `json:"userId,omitempty" doc:"Admins may submit for another user"`
	Month  string `json:"month" example:"2025-03"`
}

type ReviewReportRequest struct {
	Decision string `json:"decision" example:"approved"`
	Note     string `json:"note,omitempty"`
}

type HolidaysRequest struct {
	Days []string `json:"days"`
}

type UpdateSettingsRequest struct {
	InactivityAlerts  *bool `json:"inactivityAlerts,omitempty"`
	PushNotifications *bool `json:"pushNotifications,omitempty"`
	JiraIntegration   *bool `json:"jiraIntegration,omitempty"`
	KanbanEnabled     *bool `json:"kanbanEnabled,omitempty"`
}

// Response payloads

type MeResponse struct {
	User     domain.User          `json:"user"`
	Settings domain.AdminSettings `json:"settings"`
}

type SummaryResponse struct {
	UserID string `json:"userId"`
	Month  string `json:"month"`
	hours.Summary
}

type InactivityResponse struct {
	UserID       string `json:"userId"`
	LastActivity string `json:"lastActivity,omitempty" format:"date-time"`
	LastDate     string `json:"lastDate,omitempty" format:"date"`
	hours.Inactivity
}

type FunctionList struct {
	Names []string `json:"names"`
}

type PermissionResponse struct {
	Permission string `json:"permission" enum:"granted,denied"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type paginatedEvents struct {
	Items      []domain.Event `json:"items"`
	NextCursor string         `json:"nextCursor,omitempty"`
}

type WorkItemSnapshot struct {
	Items []domain.WorkItem `json:"items"`
}

type StatusSnapshot struct {
	Statuses []domain.Status `json:"statuses"`
}

type StreamError struct {
	Message string `json:"message"`
}
