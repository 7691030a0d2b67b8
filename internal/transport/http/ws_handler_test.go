package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"rocketquiz/internal/app"
	"rocketquiz/internal/domain"
	"rocketquiz/internal/infra/memory"
)

const organizerID = "org-1"

func newTestServer(t *testing.T) (*app.Service, *httptest.Server) {
	t.Helper()
	quizRepo := memory.NewQuizRepository(memory.NewStaticQuizLoader(sampleQuiz()), time.Minute)
	settings := app.DefaultSettings()
	settings.Tick = 10 * time.Millisecond
	settings.PublicURL = "http://quiz.test/play"
	ids := 0
	service := app.NewService(memory.NewDocumentStore(), quizRepo, settings,
		app.WithShuffle(func(n int) []int {
			out := make([]int, n)
			for i := range out {
				out[i] = i
			}
			return out
		}),
		app.WithIDs(func() string {
			ids++
			return fmt.Sprintf("session-%d", ids)
		}),
	)
	server := httptest.NewServer(Router(service))
	t.Cleanup(server.Close)
	return service, server
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil reads messages until one satisfies match.
func readUntil(t *testing.T, conn *websocket.Conn, what string, match func(message) bool) message {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		_ = conn.SetReadDeadline(deadline)
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("read json while waiting for %s: %v", what, err)
		}
		if match(msg) {
			return msg
		}
	}
}

func viewIs(match func(app.View) bool) func(message) bool {
	return func(msg message) bool {
		if msg.Type != "view" {
			return false
		}
		var v app.View
		if err := json.Unmarshal(msg.Payload, &v); err != nil {
			return false
		}
		return match(v)
	}
}

func statusIs(text string) func(message) bool {
	return func(msg message) bool {
		if msg.Type != "status" {
			return false
		}
		var p statusPayload
		_ = json.Unmarshal(msg.Payload, &p)
		return p.Message == text
	}
}

func TestWebSocketGameFlow(t *testing.T) {
	service, server := newTestServer(t)
	session, err := service.CreateSession(context.Background(), "quiz-1", organizerID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	player := dial(t, server, "session="+session.ID+"&nickname=Alice&client=c-alice")
	readUntil(t, player, "lobby", viewIs(func(v app.View) bool { return v.Phase == app.PhaseLobby }))

	host := dial(t, server, "session="+session.ID+"&client="+organizerID)
	readUntil(t, host, "startable lobby", viewIs(func(v app.View) bool { return v.Organizer && v.CanStart }))

	if err := player.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntil(t, player, "organizer-only status", statusIs(domain.ErrNotOrganizer.Error()))

	if err := host.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	question := readUntil(t, player, "question 0", viewIs(func(v app.View) bool { return v.Phase == app.PhaseQuestion }))
	var view app.View
	if err := json.Unmarshal(question.Payload, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if len(view.Options) != 3 || view.Options[1].Text != "4" || view.CorrectAnswer != nil {
		t.Fatalf("unexpected question view %+v", view)
	}

	answer := map[string]any{
		"type":    "answer",
		"payload": map[string]any{"questionIndex": 0, "option": 1},
	}
	if err := player.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readUntil(t, player, "quorum reveal", viewIs(func(v app.View) bool {
		return v.Phase == app.PhaseReveal && v.RevealReason == app.RevealQuorum && v.MyAnswer != nil && *v.MyAnswer == 1
	}))

	if err := player.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}
	readUntil(t, player, "stale status", statusIs(domain.ErrStaleQuestion.Error()))

	readUntil(t, host, "reveal on host", viewIs(func(v app.View) bool { return v.CanFinish }))
	if err := host.WriteJSON(map[string]any{"type": "finish"}); err != nil {
		t.Fatalf("write finish: %v", err)
	}
	final := readUntil(t, player, "finished", viewIs(func(v app.View) bool { return v.Phase == app.PhaseFinished }))
	if err := json.Unmarshal(final.Payload, &view); err != nil {
		t.Fatalf("decode view: %v", err)
	}
	if len(view.Leaderboard) != 1 || view.Leaderboard[0].Nickname != "Alice" || view.Leaderboard[0].Score < 1000 {
		t.Fatalf("unexpected final leaderboard %+v", view.Leaderboard)
	}

	if err := player.WriteJSON(map[string]any{"type": "dance"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	readUntil(t, player, "unsupported status", statusIs(errUnsupported.Error()))
}

func TestWebSocketKickClosesConnection(t *testing.T) {
	service, server := newTestServer(t)
	session, err := service.CreateSession(context.Background(), "quiz-1", organizerID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	player := dial(t, server, "session="+session.ID+"&nickname=Bob&client=c-bob")
	readUntil(t, player, "lobby", viewIs(func(v app.View) bool { return v.Phase == app.PhaseLobby }))
	host := dial(t, server, "session="+session.ID+"&client="+organizerID)
	readUntil(t, host, "lobby with Bob", viewIs(func(v app.View) bool { return len(v.Players) == 1 }))

	if err := host.WriteJSON(map[string]any{"type": "kick", "payload": map[string]any{"nickname": "Bob"}}); err != nil {
		t.Fatalf("write kick: %v", err)
	}
	readUntil(t, player, "removal notice", statusIs("you were removed from the session"))

	_ = player.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg message
	if err := player.ReadJSON(&msg); err == nil {
		t.Fatalf("expected connection to close, got %+v", msg)
	}
	readUntil(t, host, "empty lobby", viewIs(func(v app.View) bool { return len(v.Players) == 0 }))
}

func TestWebSocketRejectsTakenNickname(t *testing.T) {
	service, server := newTestServer(t)
	session, err := service.CreateSession(context.Background(), "quiz-1", organizerID)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	first := dial(t, server, "session="+session.ID+"&nickname=Sam&client=c-1")
	readUntil(t, first, "lobby", viewIs(func(v app.View) bool { return v.Phase == app.PhaseLobby }))

	second := dial(t, server, "session="+session.ID+"&nickname=Sam&client=c-2")
	readUntil(t, second, "taken status", statusIs(domain.ErrNicknameTaken.Error()))

	again := dial(t, server, "session="+session.ID+"&nickname=Sam&client=c-1&rejoin=true")
	readUntil(t, again, "rejoined lobby", viewIs(func(v app.View) bool {
		return v.Nickname == "Sam" && strings.Join(v.Players, ",") == "Sam"
	}))
}

func sampleQuiz() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Arithmetic",
			Questions: []domain.Question{
				{Text: "What is 2 + 2?", Answers: []string{"3", "4", "5"}, CorrectAnswer: 1, Time: 30},
			},
		},
	}
}
