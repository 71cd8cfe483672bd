package server

import (
	"proconnect/internal/models"
	"proconnect/internal/repository"

	"github.com/gofiber/fiber/v2"
)

// SendMessage handles POST /api/messages
// @Summary Send a direct message
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.SendMessageRequest true "Message"
// @Success 201 {object} models.Message
// @Failure 400 {object} models.ErrorResponse
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /messages [post]
func (s *Server) SendMessage(c *fiber.Ctx) error {
	var req models.SendMessageRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	msg, err := s.messageService.SendMessage(c.UserContext(), viewerID(c), req)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(msg)
}

// GetThread handles GET /api/messages/:counterpartId
// @Summary Message thread
// @Description The last `limit` messages with a counterpart, oldest first
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Param counterpartId path int true "Counterpart user ID"
// @Param limit query int false "Max messages (default 50, max 200)"
// @Success 200 {array} models.Message
// @Router /messages/{counterpartId} [get]
func (s *Server) GetThread(c *fiber.Ctx) error {
	counterpartID, err := parseID(c, "counterpartId")
	if err != nil {
		return nil
	}

	limit := c.QueryInt("limit", repository.DefaultThreadLimit)
	msgs, err := s.messageService.GetThread(c.UserContext(), viewerID(c), counterpartID, limit)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(msgs)
}

// GetConversations handles GET /api/conversations
// @Summary Recent conversations
// @Description One summary per counterpart, most recent first, with unread counts
// @Tags messages
// @Produce json
// @Security BearerAuth
// @Success 200 {array} models.ConversationSummary
// @Router /conversations [get]
func (s *Server) GetConversations(c *fiber.Ctx) error {
	list, err := s.messageService.GetConversations(c.UserContext(), viewerID(c))
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(list)
}

// MarkAsRead handles POST /api/messages/mark-as-read
// @Summary Mark a thread read
// @Description Idempotent; repeating it reports zero updates
// @Tags messages
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.MarkAsReadRequest true "Counterpart"
// @Success 200 {object} models.MarkAsReadResponse
// @Router /messages/mark-as-read [post]
func (s *Server) MarkAsRead(c *fiber.Ctx) error {
	var req models.MarkAsReadRequest
	if err := parseBody(c, &req); err != nil {
		return nil
	}

	updated, err := s.messageService.MarkAsRead(c.UserContext(), viewerID(c), req.OtherUserID)
	if err != nil {
		return respondWithError(c, err)
	}
	return c.JSON(models.MarkAsReadResponse{Updated: updated})
}
