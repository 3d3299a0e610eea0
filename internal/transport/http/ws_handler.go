package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"live-poll-service/internal/app"
	"live-poll-service/internal/domain"
)

type WSHandler struct {
	service  *app.PollService
	opts     LiveOptions
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.PollService, opts LiveOptions, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		opts:    opts.withDefaults(),
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type joinPayload struct {
	CourseID string `json:"courseId"`
}

type submitPayload struct {
	QuestionID string `json:"questionId"`
	Label      string `json:"label"`
}

type questionPayload struct {
	CourseID     string          `json:"courseId"`
	Prompt       string          `json:"prompt"`
	Choices      []domain.Choice `json:"choices"`
	CorrectLabel string          `json:"correctLabel"`
}

type lifecyclePayload struct {
	CourseID   string `json:"courseId"`
	QuestionID string `json:"questionId"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type joinedPayload struct {
	CourseID string   `json:"courseId"`
	Role     app.Role `json:"role"`
}

type questionCreatedPayload struct {
	QuestionID string `json:"questionId"`
}

type errorPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message"`
}

func errorMessage(reason, message string) outboundMessage[errorPayload] {
	return outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Reason: reason, Message: message}}
}

func errorFor(err error) outboundMessage[errorPayload] {
	return errorMessage(domain.Reason(err), err.Error())
}

// ServeWS upgrades the request and runs the connection until it disconnects.
// Inbound messages go through one command queue per connection; outbound
// events go through the connection's send queue.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}

	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", "err", err)
		return
	}

	conn := newConnection(ws, userID, h.opts, h.logger)
	h.service.Attach(conn)
	defer func() {
		// Leave runs to completion regardless of how the socket went away.
		h.service.Leave(conn)
		conn.Close()
	}()

	go conn.writePump()

	commands := make(chan inboundMessage, 16)
	go conn.readPump(commands)

	ctx := r.Context()
	for msg := range commands {
		h.dispatch(ctx, conn, msg)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, conn *connection, msg inboundMessage) {
	switch msg.Type {
	case "join":
		var p joinPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.CourseID == "" {
			conn.enqueue(errorMessage("bad_request", "invalid join payload"))
			return
		}
		role, err := h.service.Join(ctx, p.CourseID, conn)
		if err != nil {
			conn.enqueue(errorFor(err))
			return
		}
		conn.enqueue(outboundMessage[joinedPayload]{Type: "joined", Payload: joinedPayload{CourseID: p.CourseID, Role: role}})

	case "submitAnswer":
		var p submitPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.enqueue(errorMessage("bad_request", "invalid answer payload"))
			return
		}
		// The grader replies privately with the answerResult.
		_, _ = h.service.SubmitAnswer(ctx, conn.ParticipantID(), p.QuestionID, p.Label)

	case "createQuestion", "publishQuestion":
		var p questionPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			conn.enqueue(errorMessage("bad_request", "invalid question payload"))
			return
		}
		nq := domain.NewQuestion{CourseID: p.CourseID, Prompt: p.Prompt, Choices: p.Choices, CorrectLabel: p.CorrectLabel}
		var (
			id  string
			err error
		)
		if msg.Type == "publishQuestion" {
			var q domain.Question
			q, err = h.service.PublishQuestion(ctx, conn.ParticipantID(), nq)
			id = q.ID
		} else {
			id, err = h.service.CreateQuestion(ctx, conn.ParticipantID(), nq)
		}
		if err != nil {
			conn.enqueue(errorFor(err))
			return
		}
		conn.enqueue(outboundMessage[questionCreatedPayload]{Type: "questionCreated", Payload: questionCreatedPayload{QuestionID: id}})

	case "openQuestion", "closeQuestion":
		var p lifecyclePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil || p.CourseID == "" || p.QuestionID == "" {
			conn.enqueue(errorMessage("bad_request", "invalid lifecycle payload"))
			return
		}
		var err error
		if msg.Type == "openQuestion" {
			_, err = h.service.OpenQuestion(ctx, conn.ParticipantID(), p.CourseID, p.QuestionID)
		} else {
			err = h.service.CloseQuestion(ctx, conn.ParticipantID(), p.CourseID, p.QuestionID)
		}
		if err != nil {
			conn.enqueue(errorFor(err))
		}

	default:
		conn.enqueue(errorMessage("bad_request", "unsupported message type"))
	}
}
