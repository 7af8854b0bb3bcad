package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"trackly/internal/docstore"
	"trackly/internal/domain"
	"trackly/internal/statuses"
	"trackly/internal/session"
	"trackly/internal/workitems"
)

func registerStatuses(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-statuses",
		Method:      http.MethodGet,
		Path:        "/statuses",
		Summary:     "List work item statuses in display order",
	}, func(ctx context.Context, input *struct {
		ActiveOnly bool `query:"activeOnly"`
	}) (*struct {
		Body []domain.Status `json:"body"`
	}, error) {
		list, err := h.app.Statuses.List(ctx)
		if err != nil {
			return nil, h.handleError(err)
		}
		if input.ActiveOnly {
			list = statuses.ActiveOnly(list)
		}
		return &struct {
			Body []domain.Status `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-status",
		Method:        http.MethodPost,
		Path:          "/statuses",
		Summary:       "Create status",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		Body CreateStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Status `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := h.app.Statuses.Create(ctx, sess, statuses.CreateOptions{Key: input.Body.Key, Label: input.Body.Label})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Status `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-status",
		Method:      http.MethodPatch,
		Path:        "/statuses/{status_id}",
		Summary:     "Rename status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StatusID string              `path:"status_id"`
		Body     UpdateStatusRequest `json:"body"`
	}) (*struct {
		Body domain.Status `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := h.app.Statuses.UpdateLabel(ctx, sess, input.StatusID, input.Body.Label)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Status `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "toggle-status",
		Method:      http.MethodPost,
		Path:        "/statuses/{status_id}/toggle",
		Summary:     "Flip a status between active and inactive",
		Errors:      []int{http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		StatusID string `path:"status_id"`
	}) (*struct {
		Body domain.Status `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		st, err := h.app.Statuses.ToggleActive(ctx, sess, input.StatusID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.Status `json:"body"`
		}{Body: st}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "reorder-statuses",
		Method:      http.MethodPut,
		Path:        "/statuses/order",
		Summary:     "Set the display order of every status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body ReorderStatusesRequest `json:"body"`
	}) (*struct {
		Body []domain.Status `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		list, err := h.app.Statuses.Reorder(ctx, sess, input.Body.IDs)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.Status `json:"body"`
		}{Body: list}, nil
	})

	sse.Register(api, huma.Operation{
		OperationID: "stream-statuses",
		Method:      http.MethodGet,
		Path:        "/statuses/stream",
		Summary:     "Stream status snapshots",
	}, map[string]any{
		"snapshot": StatusSnapshot{},
		"error":    StreamError{},
	}, func(ctx context.Context, _ *struct{}, send sse.Sender) {
		sub, err := h.app.Statuses.Watch(ctx)
		if err != nil {
			_ = send.Data(StreamError{Message: err.Error()})
			return
		}
		h.stream(ctx, sub, send, func(docs []docstore.Document) (any, error) {
			list, err := statuses.Decode(docs)
			if err != nil {
				return nil, err
			}
			return StatusSnapshot{Statuses: list}, nil
		})
	})
}

func registerWorkItems(api huma.API, h *handler) {
	huma.Register(api, huma.Operation{
		OperationID: "list-work-items",
		Method:      http.MethodGet,
		Path:        "/workItems",
		Summary:     "List work items",
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		AssignedTo string `query:"assignedTo"`
		ActiveOnly bool   `query:"activeOnly"`
	}) (*struct {
		Body []domain.WorkItem `json:"body"`
	}, error) {
		list, err := h.app.WorkItems.List(ctx, workitems.ListFilter{
			Status:     input.Status,
			AssignedTo: input.AssignedTo,
			ActiveOnly: input.ActiveOnly,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body []domain.WorkItem `json:"body"`
		}{Body: list}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-work-item",
		Method:        http.MethodPost,
		Path:          "/workItems",
		Summary:       "Create work item",
		DefaultStatus: http.StatusCreated,
		Errors:        []int{http.StatusBadRequest, http.StatusForbidden},
	}, func(ctx context.Context, input *struct {
		Body CreateWorkItemRequest `json:"body"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		item, err := h.app.WorkItems.Create(ctx, sess, workitems.CreateOptions{
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			Status:        input.Body.Status,
			Priority:      input.Body.Priority,
			ProjectID:     input.Body.ProjectID,
			AssignedTo:    input.Body.AssignedTo,
			EstimateHours: input.Body.EstimateHours,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-work-item",
		Method:      http.MethodGet,
		Path:        "/workItems/{item_id}",
		Summary:     "Get work item",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string `path:"item_id"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		item, err := h.app.WorkItems.Get(ctx, input.ItemID)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-work-item",
		Method:      http.MethodPatch,
		Path:        "/workItems/{item_id}",
		Summary:     "Update work item fields",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string                `path:"item_id"`
		Body   UpdateWorkItemRequest `json:"body"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		item, err := h.app.WorkItems.Update(ctx, sess, input.ItemID, workitems.UpdateOptions{
			Title:         input.Body.Title,
			Description:   input.Body.Description,
			Priority:      input.Body.Priority,
			ProjectID:     input.Body.ProjectID,
			AssignedTo:    input.Body.AssignedTo,
			EstimateHours: input.Body.EstimateHours,
			ActualHours:   input.Body.ActualHours,
			Active:        input.Body.Active,
		})
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: item}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "move-work-item",
		Method:      http.MethodPost,
		Path:        "/workItems/{item_id}/move",
		Summary:     "Move work item to another status",
		Errors:      []int{http.StatusBadRequest, http.StatusForbidden, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		ItemID string              `path:"item_id"`
		Body   MoveWorkItemRequest `json:"body"`
	}) (*struct {
		Body domain.WorkItem `json:"body"`
	}, error) {
		sess, authErr := sessionFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		item, err := h.app.WorkItems.Move(ctx, sess, input.ItemID, input.Body.Status)
		if err != nil {
			return nil, h.handleError(err)
		}
		return &struct {
			Body domain.WorkItem `json:"body"`
		}{Body: item}, nil
	})

	sse.Register(api, huma.Operation{
		OperationID: "stream-work-items",
		Method:      http.MethodGet,
		Path:        "/workItems/stream",
		Summary:     "Stream work item snapshots",
	}, map[string]any{
		"snapshot": WorkItemSnapshot{},
		"error":    StreamError{},
	}, func(ctx context.Context, input *struct {
		Status     string `query:"status"`
		AssignedTo string `query:"assignedTo"`
		ActiveOnly bool   `query:"activeOnly"`
	}, send sse.Sender) {
		sub, err := h.app.WorkItems.Watch(ctx, workitems.ListFilter{
			Status:     input.Status,
			AssignedTo: input.AssignedTo,
			ActiveOnly: input.ActiveOnly,
		})
		if err != nil {
			_ = send.Data(StreamError{Message: err.Error()})
			return
		}
		h.stream(ctx, sub, send, func(docs []docstore.Document) (any, error) {
			list, err := docstore.Decode[domain.WorkItem](docs)
			if err != nil {
				return nil, err
			}
			return WorkItemSnapshot{Items: list}, nil
		})
	})
}

// stream forwards snapshots until the client goes away. The subscription
// is owned by a per-request scope.
func (h *handler) stream(ctx context.Context, sub *docstore.Subscription, send sse.Sender, encode func([]docstore.Document) (any, error)) {
	scope := session.NewScope()
	defer scope.Dispose()
	if err := scope.Track(sub); err != nil {
		return
	}
	id := 0
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-sub.C:
			if !ok {
				return
			}
			if snap.Err != nil {
				h.logger.Warn("stream snapshot failed", "err", snap.Err)
				_ = send.Data(StreamError{Message: "snapshot failed"})
				return
			}
			payload, err := encode(snap.Docs)
			if err != nil {
				h.logger.Warn("stream decode failed", "err", err)
				return
			}
			id++
			if err := send(sse.Message{ID: id, Data: payload}); err != nil {
				return
			}
		}
	}
}
