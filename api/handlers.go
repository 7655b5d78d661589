// Package api serves the projection and the mutation intents over HTTP.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"ledger-lists/domain"
)

const maxBodySize = 1 << 20

// Engine is the lifecycle engine the handlers drive.
type Engine interface {
	Load(ctx context.Context) error
	Lists() []domain.List
	Assignees() []domain.Assignee
	Owners() []domain.Owner
	CreateList(ctx context.Context, id domain.Identity, in domain.CreateListIntent) (domain.List, error)
	CreateAssignee(ctx context.Context, id domain.Identity, in domain.CreateAssigneeIntent) (domain.Assignee, error)
	DeleteTask(ctx context.Context, id domain.Identity, in domain.DeleteTaskIntent) error
	EditTask(ctx context.Context, id domain.Identity, in domain.EditTaskIntent) (domain.Task, error)
}

// Identities resolves identity names to signing credentials.
type Identities interface {
	Lookup(name string) (domain.Identity, error)
}

type handler struct {
	engine Engine
	auth   Authenticator
	ids    Identities
	log    *log.Logger
}

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, eng Engine, auth Authenticator, ids Identities, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handler{engine: eng, auth: auth, ids: ids, log: logger}
	e.GET("/api/lists", h.getLists)
	e.GET("/api/assignees", h.getAssignees)
	e.GET("/api/owners", h.getOwners)
	e.POST("/api/lists", h.postList)
	e.POST("/api/assignees", h.postAssignee)
	e.PATCH("/api/tasks/:id", h.patchTask)
	e.DELETE("/api/tasks/:id", h.deleteTask)
	e.POST("/api/reload", h.postReload)
	e.GET("/healthz", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
}

type errorResponse struct {
	Status    string `json:"status"`
	Error     string `json:"error"`
	RequestID string `json:"requestId"`
}

// createListRequest is the list form as browsers send it. Each task carries a
// client-side key and the assignee's email; both are display state and are
// dropped before building the intent.
type createListRequest struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Owner       domain.ID     `json:"listOwner,omitempty"`
	Tasks       []taskRequest `json:"tasks"`
}

type taskRequest struct {
	ID         string    `json:"id,omitempty"`
	Email      string    `json:"email,omitempty"`
	Task       string    `json:"task"`
	Completed  bool      `json:"completed"`
	AssignedTo domain.ID `json:"assignedTo,omitempty"`
}

func (r createListRequest) intent() domain.CreateListIntent {
	in := domain.CreateListIntent{Name: r.Name, Description: r.Description, Owner: r.Owner}
	for _, t := range r.Tasks {
		in.Tasks = append(in.Tasks, domain.TaskInput{Task: t.Task, Completed: t.Completed, AssignedTo: t.AssignedTo})
	}
	return in
}

type editTaskRequest struct {
	Name        string `json:"name"`
	IsCompleted bool   `json:"isCompleted"`
}

func (h *handler) identity(c echo.Context) (domain.Identity, error) {
	name, err := h.auth.Subject(c.Request())
	if err != nil {
		return domain.Identity{}, err
	}
	return h.ids.Lookup(name)
}

func (h *handler) getLists(c echo.Context) error {
	if _, err := h.identity(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	return c.JSON(http.StatusOK, h.engine.Lists())
}

func (h *handler) getAssignees(c echo.Context) error {
	if _, err := h.identity(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	return c.JSON(http.StatusOK, h.engine.Assignees())
}

func (h *handler) getOwners(c echo.Context) error {
	if _, err := h.identity(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	return c.JSON(http.StatusOK, h.engine.Owners())
}

func (h *handler) postList(c echo.Context) error {
	id, err := h.identity(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var req createListRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	list, err := h.engine.CreateList(c.Request().Context(), id, req.intent())
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, list)
}

func (h *handler) postAssignee(c echo.Context) error {
	id, err := h.identity(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	var in domain.CreateAssigneeIntent
	if err := decodeBody(c, &in); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	a, err := h.engine.CreateAssignee(c.Request().Context(), id, in)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *handler) patchTask(c echo.Context) error {
	id, err := h.identity(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	taskID, err := pathID(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid task id")
	}
	var req editTaskRequest
	if err := decodeBody(c, &req); err != nil {
		return c.String(http.StatusBadRequest, "invalid body")
	}
	task, err := h.engine.EditTask(c.Request().Context(), id, domain.EditTaskIntent{TaskID: taskID, Name: req.Name, Completed: req.IsCompleted})
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(http.StatusOK, task)
}

func (h *handler) deleteTask(c echo.Context) error {
	id, err := h.identity(c)
	if err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	taskID, err := pathID(c)
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid task id")
	}
	if err := h.engine.DeleteTask(c.Request().Context(), id, domain.DeleteTaskIntent{TaskID: taskID}); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handler) postReload(c echo.Context) error {
	if _, err := h.identity(c); err != nil {
		return c.String(http.StatusUnauthorized, err.Error())
	}
	if err := h.engine.Load(c.Request().Context()); err != nil {
		return h.fail(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// fail writes err using the error taxonomy. Submission failures and timeouts
// are reported with status "unknown" since the write may still land.
func (h *handler) fail(c echo.Context, err error) error {
	class := domain.Classify(err)
	status := http.StatusInternalServerError
	switch class {
	case domain.ClassInvalidIntent:
		status = http.StatusBadRequest
	case domain.ClassSigning:
		status = http.StatusUnprocessableEntity
	case domain.ClassRejected:
		status = http.StatusForbidden
	case domain.ClassTimedOut:
		status = http.StatusGatewayTimeout
	case domain.ClassSubmission:
		status = http.StatusBadGateway
	}
	resp := errorResponse{Status: string(class), Error: err.Error(), RequestID: uuid.NewString()}
	if domain.Unknown(err) {
		resp.Status = "unknown"
	}
	entry := h.log.WithError(err).WithFields(log.Fields{"request_id": resp.RequestID, "class": class, "path": c.Path()})
	if status >= http.StatusInternalServerError {
		entry.Error("api.command_failed")
	} else {
		entry.Info("api.command_failed")
	}
	return c.JSON(status, resp)
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func pathID(c echo.Context) (domain.ID, error) {
	raw, err := url.PathUnescape(c.Param("id"))
	if err != nil {
		return "", err
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("empty id")
	}
	return domain.ID(raw), nil
}
