package server

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"trackly/internal/auth"
	"trackly/internal/domain"
	"trackly/internal/hours"
	"trackly/internal/users"
)

func registerAuth(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "login",
		Method:      http.MethodPost,
		Path:        "/auth/login",
		Summary:     "Sign in with email and password",
		Errors:      []int{http.StatusBadRequest, http.StatusUnauthorized},
	}, func(ctx context.Context, input *struct {
		Body LoginRequest `json:"body"`
	}) (*struct {
		Body auth.Login `json:"body"`
	}, error) {
		login, err := h.app.Auth.SignIn(ctx, input.Body.Email, input.Body.Password)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body auth.Login `json:"body"`
		}{Body: login}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "logout",
		Method:        http.MethodPost,
		Path:          "/auth/logout",
		Summary:       "Revoke the current token",
		DefaultStatus: http.StatusNoContent,
		Errors:        []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct{}, error) {
		if _, authErr := sessionFromContext(ctx); authErr != nil {
			return nil, authErr
		}
		if err := h.app.Auth.SignOut(ctx, tokenFromContext(ctx)); err != nil {
			return nil, h.handleError(err)
		}
		return &struct{}{}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "me",
		Method:      http.MethodGet,
		Path:        "/me",
		Summary:     "Current user and settings",
		Errors:      []int{http.StatusUnauthorized},
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body MeResponse `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		return &struct {
			Body MeResponse `json:"body"`
		}{Body: MeResponse{User: sess.User, Settings: sess.Settings}}, nil
	})
}

func registerUsers(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID:   "create-user",
		Method:        http.MethodPost,
		Path:          "/users",
		Summary:       "Create user",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateUserRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := sess.RequireAdmin("create users"); err != nil {
			return nil, h.handleError(err)
		}
		role := input.Body.Role
		if role == "" {
			role = domain.RoleUser
		}
		u, err := h.app.Users.Create(ctx, users.CreateOptions{
			Name:     input.Body.Name,
			Email:    input.Body.Email,
			Role:     role,
			Password: input.Body.Password,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: users.Public(u)}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-users",
		Method:      http.MethodGet,
		Path:        "/users",
		Summary:     "List users",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		ActiveOnly bool `query:"activeOnly"`
	}) (*struct {
		Body []domain.User `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := sess.RequireAdmin("list users"); err != nil {
			return nil, h.handleError(err)
		}
		list, err := h.app.Users.List(ctx, input.ActiveOnly)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.User `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "set-user-active",
		Method:      http.MethodPut,
		Path:        "/users/{user_id}/active",
		Summary:     "Activate or deactivate a user",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		UserID string           `path:"user_id"`
		Body   SetActiveRequest `json:"body"`
	}) (*struct {
		Body domain.User `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		if err := sess.RequireAdmin("change user status"); err != nil {
			return nil, h.handleError(err)
		}
		u, err := h.app.Users.SetActive(ctx, input.UserID, input.Body.Active)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.User `json:"body"`
		}{Body: u}, nil
	})
}

func registerRecords(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID:   "log-hours",
		Method:        http.MethodPost,
		Path:          "/records",
		Summary:       "Log hours",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body LogHoursRequest `json:"body"`
	}) (*struct {
		Body domain.TimeRecord `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID := input.Body.UserID
		if userID == "" {
			userID = sess.ActorID()
		}
		rec, err := h.app.Hours.Log(ctx, sess, hours.LogOptions{
			UserID:      userID,
			Date:        input.Body.Date,
			Hours:       input.Body.Hours,
			Project:     input.Body.Project,
			TaskID:      input.Body.TaskID,
			TaskTypeID:  input.Body.TaskTypeID,
			JiraIssue:   input.Body.JiraIssue,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.TimeRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-records",
		Method:      http.MethodGet,
		Path:        "/records",
		Summary:     "List time records",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID         string `query:"userId"`
		Month          string `query:"month" example:"2025-03"`
		IncludeDeleted bool   `query:"includeDeleted"`
	}) (*struct {
		Body []domain.TimeRecord `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID, err := h.targetUser(sess.ActorID(), input.UserID, sess.CanActFor)
		if err != nil {
			return nil, err
		}
		list, lerr := h.app.Hours.List(ctx, userID, input.Month, input.IncludeDeleted)
		if lerr != nil {
			return nil, h.handleError(lerr)
		}
		return &struct {
			Body []domain.TimeRecord `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-record",
		Method:      http.MethodGet,
		Path:        "/records/{record_id}",
		Summary:     "Get time record",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RecordID string `path:"record_id"`
	}) (*struct {
		Body domain.TimeRecord `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := h.app.Hours.Get(ctx, input.RecordID)
		if err != nil {
			return nil, h.handleError(err)
		}
		if !sess.CanActFor(rec.UserID) {
			return nil, newAPIError(http.StatusForbidden, "forbidden", "cannot view another user's records", nil)
		}
		return &struct {
			Body domain.TimeRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "edit-record",
		Method:      http.MethodPatch,
		Path:        "/records/{record_id}",
		Summary:     "Edit time record",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RecordID string            `path:"record_id"`
		Body     EditRecordRequest `json:"body"`
	}) (*struct {
		Body domain.TimeRecord `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := h.app.Hours.Edit(ctx, sess, input.RecordID, hours.EditOptions{
			Date:        input.Body.Date,
			Hours:       input.Body.Hours,
			Project:     input.Body.Project,
			TaskID:      input.Body.TaskID,
			TaskTypeID:  input.Body.TaskTypeID,
			JiraIssue:   input.Body.JiraIssue,
			Description: input.Body.Description,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.TimeRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "delete-record",
		Method:      http.MethodDelete,
		Path:        "/records/{record_id}",
		Summary:     "Soft-delete time record",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RecordID string `path:"record_id"`
	}) (*struct {
		Body domain.TimeRecord `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := h.app.Hours.Delete(ctx, sess, input.RecordID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.TimeRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "restore-record",
		Method:      http.MethodPost,
		Path:        "/records/{record_id}/restore",
		Summary:     "Restore a deleted time record",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		RecordID string `path:"record_id"`
	}) (*struct {
		Body domain.TimeRecord `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		rec, err := h.app.Hours.Restore(ctx, sess, input.RecordID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.TimeRecord `json:"body"`
		}{Body: rec}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-summary",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/summary",
		Summary:     "Monthly hours summary",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
		Month  string `query:"month" required:"true" example:"2025-03"`
	}) (*struct {
		Body SummaryResponse `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID, err := h.targetUser(sess.ActorID(), input.UserID, sess.CanActFor)
		if err != nil {
			return nil, err
		}
		sum, serr := h.app.Hours.Summary(ctx, userID, input.Month)
		if serr != nil {
			return nil, h.handleError(serr)
		}
		return &struct {
			Body SummaryResponse `json:"body"`
		}{Body: SummaryResponse{UserID: userID, Month: input.Month, Summary: sum}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "user-inactivity",
		Method:      http.MethodGet,
		Path:        "/users/{user_id}/inactivity",
		Summary:     "Days since the user last logged hours",
		Errors:      []int{http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		UserID string `path:"user_id"`
	}) (*struct {
		Body InactivityResponse `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		userID, err := h.targetUser(sess.ActorID(), input.UserID, sess.CanActFor)
		if err != nil {
			return nil, err
		}
		act, aerr := h.app.Hours.LastActivity(ctx, userID)
		if aerr != nil {
			return nil, h.handleError(aerr)
		}
		resp := InactivityResponse{
			UserID:     userID,
			LastDate:   act.Date,
			Inactivity: hours.CheckInactivity(act.At, h.app.Hours.Now(), sess.Settings.InactivityAlerts),
		}
		if act.At != nil {
			resp.LastActivity = act.At.UTC().Format(time.RFC3339)
		}
		return &struct {
			Body InactivityResponse `json:"body"`
		}{Body: resp}, nil
	})
}

// targetUser resolves "me" and empty ids to the session user and checks
// that the session may read the target's data.
func (h *handler) targetUser(self, requested string, canActFor func(string) bool) (string, huma.StatusError) {
	if requested == "" || requested == "me" {
		return self, nil
	}
	if !canActFor(requested) {
		return "", newAPIError(http.StatusForbidden, "forbidden", "cannot view another user's data", nil)
	}
	return requested, nil
}
