package http

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
)

func TestCreateAndReadSession(t *testing.T) {
	_, server := newTestServer(t)

	body := strings.NewReader(`{"quizId":"quiz-1","organizerId":"org-1"}`)
	resp, err := http.Post(server.URL+"/api/sessions", "application/json", body)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var created createSessionResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.SessionID == "" || created.JoinURL != "http://quiz.test/play?session="+created.SessionID {
		t.Fatalf("unexpected create response %+v", created)
	}

	resp, err = http.Get(server.URL + "/api/sessions/" + created.SessionID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if bytes.Contains(raw, []byte("org-1")) || bytes.Contains(raw, []byte("organizerId")) {
		t.Fatalf("snapshot exposes the organizer id: %s", raw)
	}
	var snapshot sessionResponse
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if snapshot.Session.QuizID != "quiz-1" || snapshot.Session.Started {
		t.Fatalf("unexpected snapshot %+v", snapshot.Session)
	}

	resp, err = http.Get(server.URL + "/api/sessions/" + created.SessionID + "/qr?size=128")
	if err != nil {
		t.Fatalf("get qr: %v", err)
	}
	defer resp.Body.Close()
	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)
	if resp.Header.Get("Content-Type") != "image/png" || !bytes.HasPrefix(buf.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("expected png, got %s", resp.Header.Get("Content-Type"))
	}

	resp, err = http.Get(server.URL + "/api/sessions/" + created.SessionID + "/results")
	if err != nil {
		t.Fatalf("get results: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for results, got %d", resp.StatusCode)
	}
}

func TestAPIErrors(t *testing.T) {
	_, server := newTestServer(t)

	cases := []struct {
		name    string
		method  string
		path    string
		body    string
		code    int
		message string
	}{
		{"unknown session", http.MethodGet, "/api/sessions/nope", "", http.StatusNotFound, "session not found"},
		{"unknown qr", http.MethodGet, "/api/sessions/nope/qr", "", http.StatusNotFound, "session not found"},
		{"unknown quiz", http.MethodPost, "/api/sessions", `{"quizId":"nope","organizerId":"o"}`, http.StatusNotFound, "quiz not found"},
		{"bad body", http.MethodPost, "/api/sessions", `{`, http.StatusBadRequest, "invalid payload"},
		{"missing fields", http.MethodPost, "/api/sessions", `{"quizId":"quiz-1"}`, http.StatusBadRequest, errMissingFields.Error()},
		{"unknown analytics", http.MethodGet, "/api/quizzes/nope/analytics", "", http.StatusNotFound, "quiz not found"},
	}
	for _, tc := range cases {
		req, err := http.NewRequest(tc.method, server.URL+tc.path, strings.NewReader(tc.body))
		if err != nil {
			t.Fatalf("%s: request: %v", tc.name, err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("%s: do: %v", tc.name, err)
		}
		var payload statusPayload
		_ = json.NewDecoder(resp.Body).Decode(&payload)
		resp.Body.Close()
		if resp.StatusCode != tc.code || payload.Message != tc.message {
			t.Fatalf("%s: expected %d %q, got %d %q", tc.name, tc.code, tc.message, resp.StatusCode, payload.Message)
		}
	}
}

func TestHealthAndAnalytics(t *testing.T) {
	_, server := newTestServer(t)

	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/api/quizzes/quiz-1/analytics")
	if err != nil {
		t.Fatalf("analytics: %v", err)
	}
	defer resp.Body.Close()
	var report struct {
		QuizID   string `json:"quizId"`
		Sessions int    `json:"sessions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if report.QuizID != "quiz-1" || report.Sessions != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}
