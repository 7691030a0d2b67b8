package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"rocketquiz/internal/app"
)

// WSHandler upgrades game connections and runs a participant for each.
type WSHandler struct {
	service  *app.Service
	upgrader websocket.Upgrader
}

// NewWSHandler accepts connections from any origin.
func NewWSHandler(service *app.Service) *WSHandler {
	return &WSHandler{
		service: service,
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

type answerPayload struct {
	QuestionIndex int `json:"questionIndex"`
	Option        int `json:"option"`
}

type kickPayload struct {
	Nickname string `json:"nickname"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`

	// closeAfter makes the writer end the connection once this is written.
	closeAfter bool
}

type statusPayload struct {
	Message string `json:"message"`
}

func status(err error) outboundMessage {
	return outboundMessage{Type: "status", Payload: statusPayload{Message: userMessage(err)}}
}

// ServeWS upgrades the request and runs one participant of the session over it.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sessionID := q.Get("session")
	nickname := q.Get("nickname")
	clientID := q.Get("client")
	rejoin := q.Get("rejoin") == "true" || q.Get("rejoin") == "1"
	if sessionID == "" || (nickname == "" && clientID == "") {
		http.Error(w, "missing session, nickname or client", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	participant, err := h.service.Connect(ctx, sessionID, nickname, clientID, rejoin)
	if err != nil {
		_ = conn.WriteJSON(status(err))
		return
	}

	send := make(chan outboundMessage, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	viewsDone := make(chan struct{})
	runDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
			if msg.closeAfter {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "removed"))
				_ = conn.Close()
				return
			}
		}
	}()

	go func() {
		defer close(runDone)
		if err := participant.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("session %s: participant stopped: %v", sessionID, err)
			_ = conn.Close()
		}
	}()

	go func() {
		defer close(viewsDone)
		for view := range participant.Views() {
			msgs := []outboundMessage{{Type: "view", Payload: view}}
			if view.Removed {
				msgs = append(msgs, outboundMessage{
					Type:       "status",
					Payload:    statusPayload{Message: "you were removed from the session"},
					closeAfter: true,
				})
			}
			for _, msg := range msgs {
				select {
				case send <- msg:
				case <-closeSignals:
					return
				case <-writerDone:
					return
				}
			}
			if view.Removed {
				return
			}
		}
	}()

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		if err := h.dispatch(ctx, participant, inbound); err != nil {
			select {
			case send <- status(err):
			case <-writerDone:
			}
		}
	}

	cancel()
	close(closeSignals)
	<-runDone
	<-viewsDone
	close(send)
	<-writerDone
}

func (h *WSHandler) dispatch(ctx context.Context, p *app.Participant, msg inboundMessage) error {
	switch msg.Type {
	case "start":
		return p.Start(ctx)
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		return p.Answer(ctx, payload.QuestionIndex, payload.Option)
	case "next":
		return p.Next(ctx)
	case "finish":
		return p.Finish(ctx)
	case "kick":
		var payload kickPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			return errInvalidPayload
		}
		return p.Kick(ctx, payload.Nickname)
	default:
		return errUnsupported
	}
}
