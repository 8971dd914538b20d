package app

import (
	"context"
	"encoding/json"
	"time"

	"marketplace_chat_service/internal/chat/domain"
	"marketplace_chat_service/internal/chat/repository"
	"marketplace_chat_service/pkg/logger"
	"marketplace_chat_service/pkg/middlewares"

	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// ChatWebsocketHandler owns the live channel: one goroutine per connection
// reading frames, the registry's write pump delivering events back.
type ChatWebsocketHandler struct {
	router   *EventRouter
	registry *Registry
	presence repository.PresenceRepository
}

// NewChatWebsocketHandler create ChatWebsocketHandler
func NewChatWebsocketHandler(
	router *EventRouter,
	registry *Registry,
	presence repository.PresenceRepository,
) *ChatWebsocketHandler {
	return &ChatWebsocketHandler{
		router:   router,
		registry: registry,
		presence: presence,
	}
}

// HandleConnection is the entry point for an upgraded websocket. It attaches
// the user, pumps inbound frames until the socket dies, then detaches.
func (h *ChatWebsocketHandler) HandleConnection(ctx context.Context, conn *websocket.Conn) {
	userID, ok := conn.Locals(middlewares.TokenUserID).(string)
	if !ok || userID == "" {
		logger.Log.Warn("websocket without identity, closing")
		conn.Close()
		return
	}
	logger.Log.Info("websocket attach", zap.String("userID", userID))

	h.registry.Attach(userID, conn)
	h.touch(ctx, userID)

	ctxClose, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		if h.registry.Detach(userID, conn) {
			conn.Close()
		}
		h.touch(context.Background(), userID)
		logger.Log.Info("websocket close", zap.String("userID", userID))
	}()

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	// keepalive pings; control frames may be written concurrently with the
	// registry's write pump
	go func() {
		ticker := time.NewTicker(pingPeriod)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				deadline := time.Now().Add(time.Second)
				if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
					return
				}
			case <-ctxClose.Done():
				return
			}
		}
	}()

	for {
		mt, message, err := conn.ReadMessage()
		if err != nil {
			reason := domain.DisconnectTransport
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				reason = domain.DisconnectClient
			}
			logger.Log.Info("websocket read ended",
				zap.String("userID", userID),
				zap.String("reason", string(reason)),
				zap.Error(err))
			return
		}
		if mt != websocket.TextMessage {
			continue
		}
		h.dispatch(ctx, userID, message)
	}
}

// dispatch routes one inbound frame. Failures go back to the originator as a
// rejected frame and are never broadcast.
func (h *ChatWebsocketHandler) dispatch(ctx context.Context, userID string, raw []byte) {
	var req domain.WSRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		h.reject(userID, "", "malformed frame")
		return
	}

	var err error
	switch req.Event {
	case domain.EventSendMessage:
		_, err = h.router.Send(ctx, userID, req.ReceiverID, req.Content, req.ReplyToID)

	case domain.EventEditMessage:
		_, err = h.router.Edit(ctx, userID, req.MessageID, req.Content)

	case domain.EventDeleteMessage:
		err = h.router.Delete(ctx, userID, req.MessageID)

	case domain.EventMessageRead:
		_, err = h.router.Read(ctx, userID, req.MessageID)

	case domain.EventTyping:
		h.router.Typing(userID, req.CounterpartID, false)

	case domain.EventStopTyping:
		h.router.Typing(userID, req.CounterpartID, true)

	default:
		h.reject(userID, req.Event, "unknown event")
		return
	}

	if err != nil {
		logger.Log.Error("websocket event rejected",
			zap.String("userID", userID),
			zap.String("event", req.Event),
			zap.Error(err))
		h.reject(userID, req.Event, err.Error())
	}
}

func (h *ChatWebsocketHandler) reject(userID, event, reason string) {
	h.registry.Send(userID, domain.WSEvent{
		Event:    domain.EventRejected,
		Rejected: event,
		Error:    reason,
	})
}

func (h *ChatWebsocketHandler) touch(ctx context.Context, userID string) {
	if err := h.presence.Touch(ctx, userID, time.Now().UTC()); err != nil {
		logger.Log.Warn("presence touch failed", zap.String("userID", userID), zap.Error(err))
	}
}
