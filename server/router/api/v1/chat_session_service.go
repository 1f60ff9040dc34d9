package v1

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/callsight/internal/errors"
	"github.com/hrygo/callsight/plugin/chat"
	"github.com/hrygo/callsight/server/middleware"
	"github.com/hrygo/callsight/store"
)

type listChatSessionsResponse struct {
	Sessions []*store.ChatSession `json:"sessions"`
}

// updateChatSessionRequest carries any subset of the mutable fields.
type updateChatSessionRequest struct {
	Title    *string `json:"title"`
	Pinned   *bool   `json:"is_pinned"`
	Archived *bool   `json:"is_archived"`
}

// sessionID returns the :id path parameter, rejecting anything that is not
// a UUID before it reaches the store.
func sessionID(c echo.Context) (string, error) {
	raw := c.Param("id")
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", apperrors.InvalidArgument("invalid session id: " + raw)
	}
	return id.String(), nil
}

func (s *APIV1Service) ListChatSessions(c echo.Context) error {
	ctx := c.Request().Context()
	userID := middleware.UserID(c)

	archived := false
	if raw := c.QueryParam("archived"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return apperrors.InvalidArgument("archived must be a boolean")
		}
		archived = v
	}

	var sessions []*store.ChatSession
	var err error
	if archived {
		sessions, err = s.Chat.ListArchivedSessions(ctx, userID)
	} else {
		sessions, err = s.Chat.ListSessions(ctx, userID)
	}
	if err != nil {
		return err
	}
	if sessions == nil {
		sessions = []*store.ChatSession{}
	}
	return c.JSON(http.StatusOK, listChatSessionsResponse{Sessions: sessions})
}

func (s *APIV1Service) CreateChatSession(c echo.Context) error {
	var req chat.CreateSessionOptions
	if err := c.Bind(&req); err != nil {
		return apperrors.InvalidArgument("invalid request body")
	}

	session, err := s.Chat.CreateSession(c.Request().Context(), middleware.UserID(c), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, session)
}

func (s *APIV1Service) GetChatSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	session, err := s.Chat.GetSession(c.Request().Context(), middleware.UserID(c), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// UpdateChatSession applies title, then pinned, then archived. A failure
// part way leaves the earlier changes applied.
func (s *APIV1Service) UpdateChatSession(c echo.Context) error {
	ctx := c.Request().Context()
	userID := middleware.UserID(c)
	id, err := sessionID(c)
	if err != nil {
		return err
	}

	var req updateChatSessionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.InvalidArgument("invalid request body")
	}
	if req.Title == nil && req.Pinned == nil && req.Archived == nil {
		return apperrors.InvalidArgument("no fields to update")
	}

	var session *store.ChatSession
	if req.Title != nil {
		if session, err = s.Chat.RenameSession(ctx, userID, id, *req.Title); err != nil {
			return err
		}
	}
	if req.Pinned != nil {
		if session, err = s.Chat.SetPinned(ctx, userID, id, *req.Pinned); err != nil {
			return err
		}
	}
	if req.Archived != nil {
		if session, err = s.Chat.SetArchived(ctx, userID, id, *req.Archived); err != nil {
			return err
		}
	}
	return c.JSON(http.StatusOK, session)
}

func (s *APIV1Service) DeleteChatSession(c echo.Context) error {
	id, err := sessionID(c)
	if err != nil {
		return err
	}
	if err := s.Chat.DeleteSession(c.Request().Context(), middleware.UserID(c), id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
