package v1

import (
	"net/http"

	"github.com/labstack/echo/v4"

	apperrors "github.com/hrygo/callsight/internal/errors"
	"github.com/hrygo/callsight/plugin/chat"
	"github.com/hrygo/callsight/server/middleware"
)

type listChatMessagesResponse struct {
	Messages []chat.Message `json:"messages"`
}

type saveChatMessagesRequest struct {
	Messages []chat.Message `json:"messages"`
	// Model names the model that produced the assistant turns in the batch.
	Model string `json:"model"`
}

// ownedSessionID resolves :id and checks the caller owns it. Message rows
// are only reachable through their session.
func (s *APIV1Service) ownedSessionID(c echo.Context) (string, error) {
	id, err := sessionID(c)
	if err != nil {
		return "", err
	}
	if _, err := s.Chat.GetSession(c.Request().Context(), middleware.UserID(c), id); err != nil {
		return "", err
	}
	return id, nil
}

func (s *APIV1Service) ListChatMessages(c echo.Context) error {
	id, err := s.ownedSessionID(c)
	if err != nil {
		return err
	}
	messages, err := s.Chat.FetchMessages(c.Request().Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listChatMessagesResponse{Messages: messages})
}

func (s *APIV1Service) SaveChatMessages(c echo.Context) error {
	id, err := s.ownedSessionID(c)
	if err != nil {
		return err
	}

	var req saveChatMessagesRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.InvalidArgument("invalid request body")
	}

	result, err := s.Chat.SaveMessages(c.Request().Context(), middleware.UserID(c), id, req.Messages, req.Model)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, result)
}
