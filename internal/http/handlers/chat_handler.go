// README: Chat handlers; turns stream to the client over SSE or a WebSocket.
package handlers

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"travelflow/internal/log"
	"travelflow/internal/modules/chat"
	"travelflow/internal/modules/location"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type ChatHandler struct {
	chat     *chat.Service
	location *location.Service
}

func NewChatHandler(chatSvc *chat.Service, locSvc *location.Service) *ChatHandler {
	return &ChatHandler{chat: chatSvc, location: locSvc}
}

type conversationResp struct {
	chat.Conversation
	Location location.Permission `json:"location"`
}

type sendReq struct {
	Text string `json:"text"`
}

// turnEvent is the payload of the terminal SSE event and WebSocket frame.
type turnEvent struct {
	Type         string        `json:"type,omitempty"`
	State        string        `json:"state"`
	Message      *chat.Message `json:"message,omitempty"`
	ErrorMessage *chat.Message `json:"error_message,omitempty"`
}

func newTurnEvent(res chat.TurnResult) turnEvent {
	ev := turnEvent{State: string(res.State), ErrorMessage: res.ErrorMessage}
	if res.Message.ID != "" {
		m := res.Message
		ev.Message = &m
	}
	return ev
}

// Create handles POST /api/chat/conversations.
func (h *ChatHandler) Create(c *gin.Context) {
	conv, err := h.chat.Create(c.Request.Context())
	if err != nil {
		writeChatError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, conversationResp{
		Conversation: conv,
		Location:     location.Permission{State: location.PermissionUnknown},
	})
}

// Messages handles GET /api/chat/conversations/:id/messages.
func (h *ChatHandler) Messages(c *gin.Context) {
	id := c.Param("id")
	conv, err := h.chat.Get(c.Request.Context(), id)
	if err != nil {
		writeChatError(c, err)
		return
	}
	perm, err := h.location.Status(c.Request.Context(), id)
	if err != nil {
		log.Warnw("location status lookup failed", "conversation", id, "error", err)
		perm = location.Permission{State: location.PermissionUnknown}
	}
	writeJSON(c, http.StatusOK, conversationResp{Conversation: conv, Location: perm})
}

// Send handles POST /api/chat/conversations/:id/messages. The response is an
// event stream of model message snapshots ending in a done or error event.
// A client that disconnects early does not stop the turn.
func (h *ChatHandler) Send(c *gin.Context) {
	var req sendReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	turn, err := h.chat.Send(c.Request.Context(), c.Param("id"), req.Text)
	if err != nil {
		writeChatError(c, err)
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("user", turn.UserMessage)
	c.Stream(func(w io.Writer) bool {
		select {
		case msg := <-turn.Updates():
			c.SSEvent("message", msg)
			return true
		case <-turn.Done():
			if msg, ok := pendingUpdate(turn); ok {
				c.SSEvent("message", msg)
			}
			res := turn.Result()
			event := "done"
			if res.State == chat.TurnFailed {
				event = "error"
			}
			c.SSEvent(event, newTurnEvent(res))
			return false
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// Stop handles POST /api/chat/conversations/:id/stop.
// pendingUpdate returns a snapshot published before the turn finished but not
// yet read, so it goes out ahead of the terminal event.
func pendingUpdate(turn *chat.Turn) (chat.Message, bool) {
	select {
	case msg := <-turn.Updates():
		return msg, true
	default:
		return chat.Message{}, false
	}
}

func (h *ChatHandler) Stop(c *gin.Context) {
	stopped, err := h.chat.Stop(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeChatError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"stopped": stopped})
}

type wsFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type wsMessage struct {
	Type    string       `json:"type"`
	Message chat.Message `json:"message"`
}

// Socket handles GET /api/chat/conversations/:id/ws. The client sends
// {"type":"message","text":...} or {"type":"stop"}; the server answers with
// user, message and completion frames. One turn runs at a time per socket.
func (h *ChatHandler) Socket(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.chat.Get(c.Request.Context(), id); err != nil {
		writeChatError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("websocket upgrade failed", err)
		return
	}
	defer conn.Close()
	log.Infow("websocket connected", "conversation", id)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	frames := make(chan wsFrame)
	go func() {
		defer close(frames)
		for {
			var f wsFrame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			select {
			case frames <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	var (
		turn    *chat.Turn
		updates <-chan chat.Message
		done    <-chan struct{}
	)
	for {
		var out any
		select {
		case f, ok := <-frames:
			if !ok {
				return
			}
			switch f.Type {
			case "message":
				t, err := h.chat.Send(ctx, id, f.Text)
				if err != nil {
					out = gin.H{"type": "error", "error": err.Error()}
					break
				}
				turn, updates, done = t, t.Updates(), t.Done()
				out = wsMessage{Type: "user", Message: t.UserMessage}
			case "stop":
				stopped, err := h.chat.Stop(ctx, id)
				if err != nil {
					out = gin.H{"type": "error", "error": err.Error()}
					break
				}
				out = gin.H{"type": "stop", "stopped": stopped}
			default:
				out = gin.H{"type": "error", "error": "unknown frame type"}
			}
		case msg := <-updates:
			out = wsMessage{Type: "message", Message: msg}
		case <-done:
			if msg, ok := pendingUpdate(turn); ok {
				if err := conn.WriteJSON(wsMessage{Type: "message", Message: msg}); err != nil {
					log.Warnw("websocket write failed", "conversation", id, "error", err)
					return
				}
			}
			ev := newTurnEvent(turn.Result())
			ev.Type = "completion"
			out = ev
			turn, updates, done = nil, nil, nil
		}
		if err := conn.WriteJSON(out); err != nil {
			log.Warnw("websocket write failed", "conversation", id, "error", err)
			return
		}
	}
}
