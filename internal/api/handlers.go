package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/projectd/internal/apperr"
)

// maxBodySize bounds inbound payloads. Project specs and metadata blobs
// are small documents.
const maxBodySize = 1 << 20 // 1MB

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusOf maps the error taxonomy onto HTTP status codes.
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.InvalidInput:
		return http.StatusBadRequest
	case apperr.NotAuthenticated:
		return http.StatusUnauthorized
	case apperr.NotAuthorized:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.Conflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError translates a registry error into a response. The
// classified message is safe to expose; wrapped causes are logged only.
func (s *Server) writeError(c echo.Context, err error) error {
	kind := apperr.KindOf(err)

	message := "internal error"
	var appErr *apperr.Error
	if errors.As(err, &appErr) {
		message = appErr.Message
	}
	if kind == apperr.Internal {
		s.logger.Error("operation failed",
			zap.String("path", c.Path()),
			zap.Error(err))
	}

	return c.JSON(statusOf(kind), ErrorResponse{Error: kind.String(), Message: message})
}

// requester extracts the acting agent identity from the request.
func requester(c echo.Context) string {
	return c.Request().Header.Get(AgentHeader)
}

func readBody(c echo.Context) ([]byte, error) {
	return io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
}

func (s *Server) handleCreate(c echo.Context) error {
	body, err := readBody(c)
	if err != nil {
		return s.writeError(c, apperr.Wrap(apperr.InvalidInput, "unreadable request body", err))
	}

	proj, err := s.registry.Create(c.Request().Context(), c.Param("system"), requester(c), body)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusCreated, proj)
}

func (s *Server) handleList(c echo.Context) error {
	views, err := s.registry.List(c.Request().Context(), c.Param("system"), requester(c))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, views)
}

func (s *Server) handleGet(c echo.Context) error {
	view, err := s.registry.Get(c.Request().Context(), c.Param("system"), requester(c), c.Param("name"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, view)
}

func (s *Server) handleDelete(c echo.Context) error {
	err := s.registry.Delete(c.Request().Context(), c.Param("system"), requester(c), c.Param("name"))
	if err != nil {
		return s.writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// ChangeGroupRequest is the body for PUT .../group.
type ChangeGroupRequest struct {
	GroupID   string `json:"groupIdentifier"`
	GroupName string `json:"groupName"`
}

func (s *Server) handleChangeGroup(c echo.Context) error {
	var req ChangeGroupRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Wrap(apperr.InvalidInput, "invalid request body", err))
	}
	if req.GroupID == "" {
		return s.writeError(c, apperr.New(apperr.InvalidInput, "groupIdentifier is required"))
	}

	proj, err := s.registry.ChangeGroup(c.Request().Context(), c.Param("system"), requester(c), c.Param("name"), req.GroupID, req.GroupName)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, proj)
}

// ChangeMetadataRequest is the body for PUT .../metadata. OldMetadata
// must be the exact value the caller last read.
type ChangeMetadataRequest struct {
	OldMetadata json.RawMessage `json:"oldMetadata"`
	NewMetadata json.RawMessage `json:"newMetadata"`
}

func (s *Server) handleChangeMetadata(c echo.Context) error {
	var req ChangeMetadataRequest
	if err := c.Bind(&req); err != nil {
		return s.writeError(c, apperr.Wrap(apperr.InvalidInput, "invalid request body", err))
	}
	if len(req.NewMetadata) == 0 {
		return s.writeError(c, apperr.New(apperr.InvalidInput, "newMetadata is required"))
	}

	proj, err := s.registry.ChangeMetadata(c.Request().Context(), c.Param("system"), requester(c), c.Param("name"), req.OldMetadata, req.NewMetadata)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, proj)
}

// HasAccessResponse is the body for GET .../access.
type HasAccessResponse struct {
	HasAccess bool `json:"hasAccess"`
}

func (s *Server) handleHasAccess(c echo.Context) error {
	agent := c.QueryParam("agent")
	if agent == "" {
		agent = requester(c)
	}

	ok, err := s.registry.HasAccess(c.Request().Context(), c.Param("system"), c.Param("name"), agent)
	if err != nil {
		return s.writeError(c, err)
	}
	return c.JSON(http.StatusOK, HasAccessResponse{HasAccess: ok})
}

func (s *Server) handleRecover(c echo.Context) error {
	if s.recovery == nil {
		return s.writeError(c, apperr.New(apperr.InvalidInput, "no recovery credential configured"))
	}
	if err := s.recovery.Recover(c.Request().Context()); err != nil {
		return s.writeError(c, apperr.Wrap(apperr.Internal, "service group recovery failed", err))
	}
	return c.NoContent(http.StatusNoContent)
}
