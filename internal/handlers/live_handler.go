// -----------------------------------------------------------------------
// Live protocol - one websocket per user session
// -----------------------------------------------------------------------

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// ClientMessage is one inbound protocol envelope
type ClientMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// invalidMessage rejects malformed input before it reaches the session
type invalidMessage struct {
	reason string
	err    error
}

func (e *invalidMessage) Error() string { return e.err.Error() }
func (e *invalidMessage) Unwrap() error { return e.err }

func invalid(err error) error {
	return &invalidMessage{reason: "invalid_message", err: err}
}

// RejectionReason maps an error to the reason code sent to clients
func RejectionReason(err error) string {
	var bad *invalidMessage
	if errors.As(err, &bad) {
		return bad.reason
	}
	return session.Reason(err)
}

// LiveHandler serves the per-user live protocol at /ws/session?user=<id>
type LiveHandler struct {
	sessions SessionController
	logger   arbor.ILogger
}

// NewLiveHandler creates a live protocol handler
func NewLiveHandler(sessions SessionController, logger arbor.ILogger) *LiveHandler {
	return &LiveHandler{
		sessions: sessions,
		logger:   logger,
	}
}

// liveConn serialises writes to one websocket
type liveConn struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *liveConn) send(msg models.ServerMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *liveConn) ping() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (c *liveConn) closeWith(code int, text string) {
	c.mu.Lock()
	c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(writeWait))
	c.mu.Unlock()
	c.conn.Close()
}

// HandleSession upgrades the request and attaches it as the user's live subscriber.
// A second connection for the same user replaces the first.
func (h *LiveHandler) HandleSession(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user"))
	if userID == "" {
		WriteError(w, http.StatusBadRequest, "user query parameter is required")
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("Failed to upgrade WebSocket connection")
		return
	}
	lc := &liveConn{conn: conn}

	messages, detach := h.sessions.Subscribe(userID)
	done := make(chan struct{})
	common.SafeGo(h.logger, "live-writer:"+userID, func() {
		h.writeLoop(lc, userID, messages, done)
	})

	h.logger.Debug().Str("user_id", userID).Msg("WebSocket client connected")

	defer func() {
		close(done)
		detach()
		conn.Close()
		h.logger.Debug().Str("user_id", userID).Msg("WebSocket client disconnected")
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	ctx := r.Context()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.reject(lc, userID, "", invalid(fmt.Errorf("malformed message: %w", err)))
			continue
		}
		if err := h.dispatch(ctx, lc, userID, msg); err != nil {
			h.reject(lc, userID, msg.Type, err)
		}
	}
}

// writeLoop forwards outbox messages until the connection ends or is replaced
func (h *LiveHandler) writeLoop(lc *liveConn, userID string, messages <-chan models.ServerMessage, done <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case msg, ok := <-messages:
			if !ok {
				select {
				case <-done:
				default:
					h.logger.Debug().Str("user_id", userID).Msg("Live subscriber replaced, closing connection")
					lc.closeWith(websocket.CloseNormalClosure, "replaced by a newer connection")
				}
				return
			}
			if err := lc.send(msg); err != nil {
				h.logger.Debug().Err(err).Str("user_id", userID).Int64("seq", int64(msg.Seq)).Msg("Failed to write message")
				lc.conn.Close()
				return
			}
		case <-ticker.C:
			if err := lc.ping(); err != nil {
				lc.conn.Close()
				return
			}
		}
	}
}

// dispatch maps one client message to a session operation. Calls that wait on
// the browser run off the read loop so cancel and checkpoint input stay responsive.
func (h *LiveHandler) dispatch(ctx context.Context, lc *liveConn, userID string, msg ClientMessage) error {
	switch msg.Type {
	case models.MsgStartSession:
		result, err := h.sessions.StartSession(ctx, userID)
		if err != nil {
			return err
		}
		if result.AlreadyActive {
			return lc.send(models.ServerMessage{Type: models.MsgState, Payload: result.Snapshot})
		}
		return nil

	case models.MsgStopSession:
		common.SafeGo(h.logger, "live-stop:"+userID, func() {
			if err := h.sessions.StopSession(context.Background(), userID); err != nil {
				h.reject(lc, userID, msg.Type, err)
			}
		})
		return nil

	case models.MsgApply:
		var payload models.ApplyPayload
		if err := decodePayload(msg.Payload, &payload); err != nil {
			return err
		}
		return h.sessions.SubmitApply(ctx, userID, payload.JobID)

	case models.MsgFetchJobs:
		var payload models.FetchJobsPayload
		if err := decodePayload(msg.Payload, &payload); err != nil {
			return err
		}
		common.SafeGo(h.logger, "live-fetch:"+userID, func() {
			if _, err := h.sessions.FetchJobs(ctx, userID, payload.Max); err != nil {
				h.reject(lc, userID, msg.Type, err)
			}
		})
		return nil

	case models.MsgSwipe:
		var payload models.SwipePayload
		if err := decodePayload(msg.Payload, &payload); err != nil {
			return err
		}
		return h.sessions.Swipe(ctx, userID, payload.JobID, payload.Direction)

	case models.MsgAnswer:
		var payload models.AnswerPayload
		if err := decodePayload(msg.Payload, &payload); err != nil {
			return err
		}
		return h.sessions.Answer(userID, payload.QuestionID, payload.Text)

	case models.MsgSkipQuestion:
		return h.sessions.SkipQuestion(userID)

	case models.MsgCancelApplication:
		return h.sessions.CancelApplication(userID)

	case models.MsgCheckpointAction:
		var action models.CheckpointAction
		if err := decodePayload(msg.Payload, &action); err != nil {
			return err
		}
		return h.sessions.CheckpointAction(userID, action)
	}

	return &invalidMessage{reason: "unknown_message_type", err: fmt.Errorf("unknown message type %q", msg.Type)}
}

func (h *LiveHandler) reject(lc *liveConn, userID, msgType string, err error) {
	reason := RejectionReason(err)
	if reason == "internal_error" {
		h.logger.Error().Err(err).Str("user_id", userID).Str("message_type", msgType).Msg("Live request failed")
	} else {
		h.logger.Debug().Str("user_id", userID).Str("message_type", msgType).Str("reason", reason).Msg("Live request rejected")
	}

	reply := models.ServerMessage{
		Type:    models.MsgError,
		Payload: models.ErrorPayload{Reason: reason, Message: err.Error()},
	}
	if err := lc.send(reply); err != nil {
		h.logger.Debug().Err(err).Str("user_id", userID).Msg("Failed to send rejection")
	}
}

// decodePayload unmarshals and validates a message payload; an absent payload
// is validated as the zero value.
func decodePayload(raw json.RawMessage, dst interface{}) error {
	if len(raw) > 0 && string(raw) != "null" {
		if err := json.Unmarshal(raw, dst); err != nil {
			return invalid(fmt.Errorf("malformed payload: %w", err))
		}
	}
	if err := ValidateStruct(dst); err != nil {
		return invalid(err)
	}
	return nil
}
