package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/user/interview-coach/internal/event"
	"github.com/user/interview-coach/internal/interview"
)

const (
	readTimeout  = 120 * time.Second
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
	// maxMessageBytes leaves room for a whole recorded answer in
	// process-complete-audio.
	maxMessageBytes = 16 << 20
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Inbound message payloads.
type startPayload struct {
	Subject      string `json:"subject"`
	Difficulty   string `json:"difficulty"`
	Persona      string `json:"persona"`
	MaxQuestions int    `json:"maxQuestions"`
}

type audioPayload struct {
	Audio string `json:"audio"` // base64, optionally as a data URL
}

type resumePayload struct {
	SessionID string `json:"sessionId"`
}

type WebSocketHandler struct {
	orch *interview.Orchestrator
}

func NewWebSocketHandler(orch *interview.Orchestrator) *WebSocketHandler {
	return &WebSocketHandler{orch: orch}
}

func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	c := &conn{id: uuid.NewString(), ws: ws}
	h.serve(c)
}

// conn is one client connection. Writes come from the read loop, the
// transcription workers and the pause monitor, so they are serialized.
type conn struct {
	id      string
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *conn) Send(e event.Event) error {
	data, err := event.Encode(e)
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

func (c *conn) ping() error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
}

func (h *WebSocketHandler) serve(c *conn) {
	defer c.ws.Close()
	defer h.orch.Disconnect(c.id)

	log.Info().
		Str("conn_id", c.id).
		Str("remote", c.ws.RemoteAddr().String()).
		Msg("WebSocket connection established")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c.ws.SetReadLimit(maxMessageBytes)
	c.ws.SetReadDeadline(time.Now().Add(readTimeout))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})
	go c.keepAlive(ctx)

	for {
		var msg event.Envelope
		if err := c.ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("conn_id", c.id).Msg("WebSocket read error")
			} else {
				log.Info().Str("conn_id", c.id).Msg("WebSocket connection closed")
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(readTimeout))

		if err := h.dispatch(ctx, c, msg); err != nil {
			h.sendError(c, msg.Type, err)
		}
	}
}

func (c *conn) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.ping(); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("WebSocket ping failed")
				return
			}
		}
	}
}

func (h *WebSocketHandler) dispatch(ctx context.Context, c *conn, msg event.Envelope) error {
	switch msg.Type {
	case "ping":
		return c.Send(event.Pong{})

	case "start-session":
		var p startPayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		_, err := h.orch.StartSession(ctx, c.id, c, interview.StartRequest{
			Subject:      p.Subject,
			Difficulty:   p.Difficulty,
			Persona:      p.Persona,
			MaxQuestions: p.MaxQuestions,
		})
		return err

	case "resume-session":
		var p resumePayload
		if err := decodePayload(msg.Payload, &p); err != nil {
			return err
		}
		if p.SessionID == "" {
			return errInvalidPayload
		}
		_, err := h.orch.ResumeSession(ctx, c.id, c, p.SessionID)
		return err

	case "recording-start":
		return h.orch.RecordingStart(ctx, c.id)

	case "audio-frame":
		data, err := decodeAudio(msg.Payload)
		if err != nil {
			return err
		}
		return h.orch.AudioFrame(ctx, c.id, data)

	case "recording-stop":
		return h.orch.RecordingStop(ctx, c.id)

	case "answer-complete":
		return h.orch.AnswerComplete(ctx, c.id)

	case "end-session":
		return h.orch.EndSession(ctx, c.id)

	case "process-complete-audio":
		data, err := decodeAudio(msg.Payload)
		if err != nil {
			return err
		}
		return h.orch.ProcessCompleteAudio(ctx, c.id, data)

	default:
		return errUnknownType
	}
}

var (
	errInvalidPayload = errors.New("invalid payload")
	errUnknownType    = errors.New("unknown message type")
)

func decodePayload(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return errInvalidPayload
	}
	return nil
}

// decodeAudio reads the base64 audio field. Data URL prefixes such as
// "data:audio/webm;base64," are stripped.
func decodeAudio(raw json.RawMessage) ([]byte, error) {
	var p audioPayload
	if err := decodePayload(raw, &p); err != nil {
		return nil, err
	}
	b64 := p.Audio
	if i := strings.Index(b64, ","); strings.HasPrefix(b64, "data:") && i >= 0 {
		b64 = b64[i+1:]
	}
	if b64 == "" {
		return nil, errInvalidPayload
	}
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, errInvalidPayload
	}
	return data, nil
}

func (h *WebSocketHandler) sendError(c *conn, msgType string, err error) {
	code := "internal_error"
	switch {
	case errors.Is(err, interview.ErrNotRecording):
		return
	case errors.Is(err, interview.ErrUnknownSession):
		code = "unknown_session"
	case errors.Is(err, interview.ErrSessionCompleted):
		code = "session_completed"
	case errors.Is(err, errInvalidPayload):
		code = "invalid_payload"
	case errors.Is(err, errUnknownType):
		code = "unknown_type"
	}

	log.Warn().
		Err(err).
		Str("conn_id", c.id).
		Str("message_type", msgType).
		Str("code", code).
		Msg("Request failed")

	if sendErr := c.Send(event.Error{Code: code, Message: err.Error()}); sendErr != nil {
		log.Debug().Err(sendErr).Str("conn_id", c.id).Msg("Failed to send error event")
	}
}
