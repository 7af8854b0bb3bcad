package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/danielgtaylor/huma/v2"

	"trackly/internal/domain"
	"trackly/internal/events"
	"trackly/internal/export"
	"trackly/internal/reports"
	"trackly/internal/settings"
	"trackly/internal/stats"
)

func registerReports(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID:   "submit-report",
		Method:        http.MethodPost,
		Path:          "/reports",
		Summary:       "Submit a monthly report",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body SubmitReportRequest `json:"body"`
	}) (*struct {
		Body domain.MonthlyReport `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := h.app.Reports.Submit(ctx, sess, input.Body.UserID, input.Body.Month)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.MonthlyReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/reports",
		Summary:     "List monthly reports, newest first",
	}, func(ctx context.Context, input *struct {
		UserID string `query:"userId"`
		Month  string `query:"month"`
		Status string `query:"status" enum:"submitted,approved,rejected"`
	}) (*struct {
		Body []domain.MonthlyReport `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		list, err := h.app.Reports.ListFor(ctx, sess, reports.Filter{UserID: input.UserID, Month: input.Month, Status: input.Status})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.MonthlyReport `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-report",
		Method:      http.MethodGet,
		Path:        "/reports/{report_id}",
		Summary:     "Get monthly report",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ReportID string `path:"report_id"`
	}) (*struct {
		Body domain.MonthlyReport `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := h.app.Reports.Get(ctx, input.ReportID)
		if err != nil {
			return nil, h.handleError(err)
		}
		if !sess.CanActFor(rep.UserID) {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "cannot view another user's report", nil)
		}
		return &struct {
			Body domain.MonthlyReport `json:"body"`
		}{Body: rep}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "review-report",
		Method:      http.MethodPost,
		Path:        "/reports/{report_id}/review",
		Summary:     "Approve or reject a submitted report",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound, http.StatusUnprocessableEntity},
	}, func(ctx context.Context, input *struct {
		ReportID string              `path:"report_id"`
		Body     ReviewReportRequest `json:"body"`
	}) (*struct {
		Body domain.MonthlyReport `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rep, err := h.app.Reports.Review(ctx, sess, input.ReportID, input.Body.Decision, input.Body.Note)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.MonthlyReport `json:"body"`
		}{Body: rep}, nil
	})
}

func registerStats(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "monthly-stats",
		Method:      http.MethodGet,
		Path:        "/stats",
		Summary:     "Per-user statistics for a month",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Month string `query:"month" required:"true" example:"2025-03"`
	}) (*struct {
		Body []stats.UserMonth `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rows, err := h.app.Stats.Monthly(ctx, sess, input.Month)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []stats.UserMonth `json:"body"`
		}{Body: rows}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "export-stats",
		Method:      http.MethodGet,
		Path:        "/stats/export",
		Summary:     "Download monthly statistics as xlsx",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Month string `query:"month" required:"true" example:"2025-03"`
	}) (*struct {
		ContentType        string `header:"Content-Type"`
		ContentDisposition string `header:"Content-Disposition"`
		Body               []byte
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rows, err := h.app.Stats.Monthly(ctx, sess, input.Month)
		if err != nil {
			return nil, h.handleError(err)
		}
		var buf bytes.Buffer
		if err := export.WriteMonthly(&buf, input.Month, rows); err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			ContentType        string `header:"Content-Type"`
			ContentDisposition string `header:"Content-Disposition"`
			Body               []byte
		}{
			ContentType:        export.ContentType,
			ContentDisposition: fmt.Sprintf("attachment; filename=%q", "trackly-"+input.Month+".xlsx"),
			Body:               buf.Bytes(),
		}, nil
	})
}

func registerHolidays(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-holidays",
		Method:      http.MethodGet,
		Path:        "/holidays/{year}",
		Summary:     "Holiday calendar for a year",
	}, func(ctx context.Context, input *struct {
		Year int `path:"year" minimum:"1970" maximum:"9999"`
	}) (*struct {
		Body domain.Holidays `json:"body"`
	}, error) {
		hol, err := h.app.Settings.Holidays(ctx, input.Year)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Holidays `json:"body"`
		}{Body: hol}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-holidays",
		Method:      http.MethodPut,
		Path:        "/holidays/{year}",
		Summary:     "Replace the holiday calendar for a year",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Year int             `path:"year" minimum:"1970" maximum:"9999"`
		Body HolidaysRequest `json:"body"`
	}) (*struct {
		Body domain.Holidays `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		hol, err := h.app.Settings.SetHolidays(ctx, sess, input.Year, input.Body.Days)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Holidays `json:"body"`
		}{Body: hol}, nil
	})
}

func registerSettings(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "get-settings",
		Method:      http.MethodGet,
		Path:        "/settings",
		Summary:     "Feature toggles",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body domain.AdminSettings `json:"body"`
	}, error) {
		cfg, err := h.app.Settings.Get(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.AdminSettings `json:"body"`
		}{Body: cfg}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-settings",
		Method:      http.MethodPatch,
		Path:        "/settings",
		Summary:     "Change feature toggles",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body UpdateSettingsRequest `json:"body"`
	}) (*struct {
		Body domain.AdminSettings `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		cfg, err := h.app.Settings.Update(ctx, sess, settings.UpdateOptions{
			InactivityAlerts:  input.Body.InactivityAlerts,
			PushNotifications: input.Body.PushNotifications,
			JiraIntegration:   input.Body.JiraIntegration,
			KanbanEnabled:     input.Body.KanbanEnabled,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.AdminSettings `json:"body"`
		}{Body: cfg}, nil
	})
}

func registerFunctions(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-functions",
		Method:      http.MethodGet,
		Path:        "/functions",
		Summary:     "Names of callable functions",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body FunctionList `json:"body"`
	}, error) {
		return &struct {
			Body FunctionList `json:"body"`
		}{Body: FunctionList{Names: h.app.Functions.Names()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "invoke-function",
		Method:      http.MethodPost,
		Path:        "/functions/{name}",
		Summary:     "Invoke a callable function with a JSON payload",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		Name    string `path:"name"`
		RawBody []byte
	}) (*struct {
		Body any `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		payload := json.RawMessage(input.RawBody)
		if len(bytes.TrimSpace(payload)) == 0 {
			payload = json.RawMessage("{}")
		}
		out, err := h.app.Functions.Invoke(ctx, sess, input.Name, payload)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body any `json:"body"`
		}{Body: out}, nil
	})
}

func registerNotifications(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "request-notification-permission",
		Method:      http.MethodPost,
		Path:        "/notifications/permission",
		Summary:     "Request push delivery for the current user",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body PermissionResponse `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		perm, err := h.app.Registrar.RequestPermission(ctx, sess)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body PermissionResponse `json:"body"`
		}{Body: PermissionResponse{Permission: perm}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "notification-token",
		Method:      http.MethodGet,
		Path:        "/notifications/token",
		Summary:     "Delivery token for the current user, empty when not granted",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body TokenResponse `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		tok, err := h.app.Registrar.DeliveryToken(ctx, sess.ActorID())
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body TokenResponse `json:"body"`
		}{Body: TokenResponse{Token: tok}}, nil
	})
}

func registerEvents(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List recent events",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Collection string `query:"collection"`
		Type       string `query:"type"`
		DocID      string `query:"docId"`
		Limit      int    `query:"limit" default:"50"`
		Cursor     string `query:"cursor"`
	}) (*struct {
		Body paginatedEvents `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := sess.RequireAdmin("read the event log"); err != nil {
			return nil, h.handleError(err)
		}
		limit := normalizeLimit(input.Limit)
		var cursorID int64
		if input.Cursor != "" {
			parsed, err := strconv.ParseInt(input.Cursor, 10, 64)
			if err != nil {
				return nil, newAPIError(http.StatusBadRequest, "bad_request", "invalid cursor", map[string]any{"cursor": input.Cursor})
			}
			cursorID = parsed
		}
		items, err := h.app.Events.Latest(ctx, limit+1, cursorID, events.Filter{
			Collection: input.Collection,
			Type:       input.Type,
			DocID:      input.DocID,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		resp := paginatedEvents{Items: []domain.Event{}}
		if len(items) > limit {
			resp.NextCursor = fmt.Sprintf("%d", items[limit-1].ID)
			items = items[:limit]
		}
		resp.Items = append(resp.Items, items...)
		return &struct {
			Body paginatedEvents `json:"body"`
		}{Body: resp}, nil
	})
}
