package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rentmarket/pkg/auth"
	"rentmarket/pkg/models"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	writeWait  = 10 * time.Second
	maxFrame   = 64 << 10
)

type UserLookup interface {
	GetUser(ctx context.Context, id string) (models.User, error)
}

// WSHandler serves the realtime endpoint.
type WSHandler struct {
	hub      *Hub
	service  MessagingService
	users    UserLookup
	upgrader websocket.Upgrader
	logger   interface {
		Printf(string, ...any)
	}
}

// NewWSHandler accepts any origin when allowedOrigins is empty or contains "*".
func NewWSHandler(hub *Hub, service MessagingService, users UserLookup, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		hub:     hub,
		service: service,
		users:   users,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: log.New(log.Writer(), "[ws] ", log.LstdFlags),
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (h *WSHandler) RegisterRoutes(router *gin.Engine, requireAuth gin.HandlerFunc) {
	router.GET("/ws", requireAuth, h.serve)
}

// @Summary      Realtime connection
// @Description  Upgrades to a websocket. The bearer token may be passed as ?token=.
// @Tags         messaging
// @Param        token query string false "Bearer token"
// @Success      101
// @Failure      401 {object} response.APIResponse
// @Router       /ws [get]
func (h *WSHandler) serve(c *gin.Context) {
	userID := auth.UserID(c)

	var name string
	if h.users != nil {
		if u, err := h.users.GetUser(c.Request.Context(), userID); err == nil {
			name = u.Name
		}
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Printf("websocket upgrade error: %v", err)
		return
	}

	client := h.hub.AddClient(userID, name, conn)
	h.logger.Printf("user %s connected", userID)

	go h.writeLoop(client)
	go h.readLoop(client)
}

func (h *WSHandler) readLoop(client *Client) {
	defer func() {
		h.hub.RemoveClient(client)
		client.Conn.Close()
		h.logger.Printf("user %s disconnected", client.UserID)
	}()

	client.Conn.SetReadLimit(maxFrame)
	client.Conn.SetReadDeadline(time.Now().Add(pongWait))
	client.Conn.SetPongHandler(func(string) error {
		client.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		var env models.Envelope
		if err := client.Conn.ReadJSON(&env); err != nil {
			var syntaxErr *json.SyntaxError
			var typeErr *json.UnmarshalTypeError
			if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
				h.sendError(client, "invalid message format")
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Printf("websocket error for user %s: %v", client.UserID, err)
			}
			return
		}
		h.dispatch(client, env)
	}
}

func (h *WSHandler) writeLoop(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn.Close()
	}()

	for {
		select {
		case <-client.Done:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			client.Conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case env := <-client.Send:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteJSON(env); err != nil {
				h.logger.Printf("write error for user %s: %v", client.UserID, err)
				return
			}

		case <-ticker.C:
			client.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.logger.Printf("ping error for user %s: %v", client.UserID, err)
				return
			}
		}
	}
}

func (h *WSHandler) dispatch(client *Client, env models.Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch env.Event {
	case models.EventJoinConversations:
		convs, err := h.service.ListConversations(ctx, client.UserID)
		if err != nil {
			h.logger.Printf("list conversations for %s: %v", client.UserID, err)
			h.sendError(client, "failed to load conversations")
			return
		}
		for _, conv := range convs {
			h.hub.JoinMember(client, RoomFor(conv.ID))
		}
		h.send(client, models.EventConversationsLoaded, convs)

	case models.EventJoinConversation:
		var ref models.ConversationRef
		if !h.decode(client, env, &ref) {
			return
		}
		if err := h.service.CanJoin(ctx, client.UserID, ref.ConversationID); err != nil {
			h.sendError(client, err.Error())
			return
		}
		h.hub.Join(client, RoomFor(ref.ConversationID))

	case models.EventLeaveConversation:
		var ref models.ConversationRef
		if !h.decode(client, env, &ref) {
			return
		}
		h.hub.Leave(client, RoomFor(ref.ConversationID))

	case models.EventSendMessage:
		var p models.SendMessagePayload
		if !h.decode(client, env, &p) {
			return
		}
		if _, err := h.service.SendMessage(ctx, client.UserID, p.ConversationID, SendInput{Content: p.Content, ReplyToID: p.ReplyToID}); err != nil {
			h.sendError(client, err.Error())
		}

	case models.EventTyping, models.EventStopTyping:
		var ref models.ConversationRef
		if !h.decode(client, env, &ref) {
			return
		}
		room := RoomFor(ref.ConversationID)
		if !h.hub.InRoom(client, room) {
			h.sendError(client, ErrNotParticipant.Error())
			return
		}
		event := models.EventUserTyping
		if env.Event == models.EventStopTyping {
			event = models.EventUserStopTyping
		}
		out, _ := models.NewEnvelope(event, models.TypingEvent{
			ConversationID: ref.ConversationID,
			UserID:         client.UserID,
			UserName:       client.UserName,
		})
		if err := h.hub.Publish(ctx, Delivery{Room: room, ExceptUserID: client.UserID, Envelope: out}); err != nil {
			h.logger.Printf("publish %s: %v", event, err)
		}

	default:
		h.sendError(client, "unknown event: "+env.Event)
	}
}

func (h *WSHandler) decode(client *Client, env models.Envelope, v any) bool {
	if len(env.Data) == 0 || json.Unmarshal(env.Data, v) != nil {
		h.sendError(client, "invalid payload for "+env.Event)
		return false
	}
	return true
}

func (h *WSHandler) send(client *Client, event string, data any) {
	env, err := models.NewEnvelope(event, data)
	if err != nil {
		h.logger.Printf("encode %s: %v", event, err)
		return
	}
	h.hub.SendTo(client, env)
}

func (h *WSHandler) sendError(client *Client, msg string) {
	h.send(client, models.EventError, models.ErrorEvent{Message: msg})
}
