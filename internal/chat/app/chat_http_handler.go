package app

import (
	"fmt"

	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/pkg/apperr"
	"marketplace_chat_service/pkg/logger"
	"marketplace_chat_service/pkg/middlewares"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ChatHTTPHandler handles the REST surface of the conversation service. The
// same router operations back both REST and the live channel, so the two
// surfaces cannot diverge.
type ChatHTTPHandler struct {
	router     *EventRouter
	aggregator *ConversationAggregator
	messages   repository.MessageRepository
}

// NewChatHTTPHandler create ChatHTTPHandler
func NewChatHTTPHandler(
	router *EventRouter,
	aggregator *ConversationAggregator,
	messages repository.MessageRepository,
) *ChatHTTPHandler {
	return &ChatHTTPHandler{
		router:     router,
		aggregator: aggregator,
		messages:   messages,
	}
}

func (h *ChatHTTPHandler) viewer(c *fiber.Ctx) (string, error) {
	userID, ok := c.Locals(middlewares.TokenUserID).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("c.Locals(%s) is nil", middlewares.TokenUserID)
	}
	return userID, nil
}

func (h *ChatHTTPHandler) fail(c *fiber.Ctx, err error) error {
	return c.Status(apperr.HTTPStatus(err)).JSON(fiber.Map{"error": err.Error()})
}

// GetConversations lists the caller's conversations
// @Summary List conversations
// @Description Returns the caller's conversation summaries, newest first
// @Tags Conversations
// @Produce json
// @Success 200 {array} domain.ConversationSummary "conversation list"
// @Failure 503 {object} string "store unavailable"
// @Router /api/v1/conversations [get]
func (h *ChatHTTPHandler) GetConversations(c *fiber.Ctx) error {
	viewerID, err := h.viewer(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	summaries, err := h.aggregator.ListFor(c.Context(), viewerID)
	if err != nil {
		logger.Log.Error("list conversations failed", zap.String("viewerID", viewerID), zap.Error(err))
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"conversations": summaries})
}

// GetMessages returns one thread
// @Summary List messages of one conversation
// @Description Returns the full thread with the counterpart, oldest first
// @Tags Messages
// @Produce json
// @Param counterpartId path string true "counterpart user id"
// @Success 200 {array} domain.Message "messages"
// @Failure 503 {object} string "store unavailable"
// @Router /api/v1/messages/{counterpartId} [get]
func (h *ChatHTTPHandler) GetMessages(c *fiber.Ctx) error {
	viewerID, err := h.viewer(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	counterpartID := c.Params("counterpartId")

	messages, err := h.messages.ListBetween(c.Context(), viewerID, counterpartID, false)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"messages": messages})
}

// PostMessage sends a message over REST
// @Summary Send a message
// @Description Commits a new message and fans it out on the live channel
// @Tags Messages
// @Accept json
// @Produce json
// @Param request body object true "receiver_id, content, optional reply_to_id"
// @Success 200 {object} domain.Message "committed message"
// @Failure 400 {object} string "validation error"
// @Failure 503 {object} string "store unavailable"
// @Router /api/v1/messages [post]
func (h *ChatHTTPHandler) PostMessage(c *fiber.Ctx) error {
	viewerID, err := h.viewer(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	type request struct {
		ReceiverID string  `json:"receiver_id"`
		Content    string  `json:"content"`
		ReplyToID  *string `json:"reply_to_id"`
	}
	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	msg, err := h.router.Send(c.Context(), viewerID, req.ReceiverID, req.Content, req.ReplyToID)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": msg})
}

// PutMessage edits a message
// @Summary Edit a message
// @Description Replaces the content; only the sender may edit
// @Tags Messages
// @Accept json
// @Produce json
// @Param id path string true "message id"
// @Param request body object true "content"
// @Success 200 {object} domain.Message "updated message"
// @Failure 403 {object} string "not the sender"
// @Failure 404 {object} string "message not found"
// @Router /api/v1/messages/{id} [put]
func (h *ChatHTTPHandler) PutMessage(c *fiber.Ctx) error {
	viewerID, err := h.viewer(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	type request struct {
		Content string `json:"content"`
	}
	var req request
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request"})
	}

	msg, err := h.router.Edit(c.Context(), viewerID, c.Params("id"), req.Content)
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": msg})
}

// DeleteMessage tombstones a message
// @Summary Delete a message
// @Description Tombstones the message; only the sender may delete, repeats are no-ops
// @Tags Messages
// @Produce json
// @Param id path string true "message id"
// @Success 200 {object} string "deleted"
// @Failure 403 {object} string "not the sender"
// @Failure 404 {object} string "message not found"
// @Router /api/v1/messages/{id} [delete]
func (h *ChatHTTPHandler) DeleteMessage(c *fiber.Ctx) error {
	viewerID, err := h.viewer(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	if err := h.router.Delete(c.Context(), viewerID, c.Params("id")); err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": "deleted"})
}

// PostRead marks one message read
// @Summary Mark one message read
// @Description Sets read_at once; only the receiver may mark, repeats keep the original timestamp
// @Tags Messages
// @Produce json
// @Param id path string true "message id"
// @Success 200 {object} domain.Message "message with read_at"
// @Failure 403 {object} string "not the receiver"
// @Failure 404 {object} string "message not found"
// @Router /api/v1/messages/{id}/read [post]
func (h *ChatHTTPHandler) PostRead(c *fiber.Ctx) error {
	viewerID, err := h.viewer(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	msg, err := h.router.Read(c.Context(), viewerID, c.Params("id"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"message": msg})
}

// PostMarkAllRead reads a whole conversation
// @Summary Mark a whole conversation read
// @Description Reads every unread message from the counterpart, returns the count
// @Tags Messages
// @Produce json
// @Param counterpartId path string true "counterpart user id"
// @Success 200 {object} string "count of messages read"
// @Failure 503 {object} string "store unavailable"
// @Router /api/v1/messages/markAllRead/{counterpartId} [post]
func (h *ChatHTTPHandler) PostMarkAllRead(c *fiber.Ctx) error {
	viewerID, err := h.viewer(c)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	count, err := h.router.MarkAllRead(c.Context(), viewerID, c.Params("counterpartId"))
	if err != nil {
		return h.fail(c, err)
	}
	return c.JSON(fiber.Map{"count": count})
}
