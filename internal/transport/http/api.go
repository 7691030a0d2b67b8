package http

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"rocketquiz/internal/app"
	"rocketquiz/internal/domain"
)

// clientError is a transport-level rejection shown to the user as is.
type clientError string

func (e clientError) Error() string { return string(e) }

const (
	errInvalidPayload = clientError("invalid payload")
	errUnsupported    = clientError("unsupported message type")
	errMissingFields  = clientError("quizId and organizerId are required")
)

func userMessage(err error) string {
	var ce clientError
	if errors.As(err, &ce) {
		return ce.Error()
	}
	return domain.UserMessage(err)
}

func statusCode(err error) int {
	var ce clientError
	switch {
	case errors.As(err, &ce):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrQuizNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotOrganizer):
		return http.StatusForbidden
	case domain.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// API serves the REST side: session creation, snapshots, join codes and results.
type API struct {
	service *app.Service
}

// NewAPI creates the REST handlers for service.
func NewAPI(service *app.Service) *API {
	return &API{service: service}
}

// Router wires the REST endpoints and the websocket endpoint.
func Router(service *app.Service) http.Handler {
	api := NewAPI(service)
	ws := NewWSHandler(service)

	router := httprouter.New()
	router.GET("/healthz", func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		w.Write([]byte("ok"))
	})
	router.GET("/ws", func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		ws.ServeWS(w, r)
	})
	router.POST("/api/sessions", api.createSession)
	router.GET("/api/sessions/:id", api.getSession)
	router.GET("/api/sessions/:id/qr", api.qrCode)
	router.GET("/api/sessions/:id/results", api.results)
	router.GET("/api/quizzes/:id/analytics", api.analytics)
	return router
}

type createSessionRequest struct {
	QuizID      string `json:"quizId"`
	OrganizerID string `json:"organizerId"`
}

type createSessionResponse struct {
	SessionID string `json:"sessionId"`
	JoinURL   string `json:"joinUrl"`
}

// publicSession hides the organizer id, which is the organizer's only credential.
type publicSession struct {
	domain.Session
	OrganizerID string `json:"organizerId,omitempty"`
}

type sessionResponse struct {
	Session publicSession   `json:"session"`
	Players []domain.Player `json:"players"`
	Answers []domain.Answer `json:"answers"`
	JoinURL string          `json:"joinUrl"`
}

func (a *API) createSession(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req createSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errInvalidPayload)
		return
	}
	if req.QuizID == "" || req.OrganizerID == "" {
		writeError(w, errMissingFields)
		return
	}
	session, err := a.service.CreateSession(r.Context(), req.QuizID, req.OrganizerID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID: session.ID,
		JoinURL:   a.service.JoinURL(session.ID),
	})
}

func (a *API) getSession(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	st, err := a.service.State(r.Context(), ps.ByName("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Session: publicSession{Session: st.Session},
		Players: st.Players,
		Answers: st.Answers,
		JoinURL: a.service.JoinURL(st.Session.ID),
	})
}

func (a *API) qrCode(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	size := 320
	if raw := r.URL.Query().Get("size"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n >= 64 && n <= 1024 {
			size = n
		}
	}
	png, err := a.service.QRCode(r.Context(), ps.ByName("id"), size)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

func (a *API) results(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	report, err := a.service.Results(r.Context(), ps.ByName("id"))
	respond(w, report, err)
}

func (a *API) analytics(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	report, err := a.service.QuizAnalytics(r.Context(), ps.ByName("id"))
	respond(w, report, err)
}

func respond(w http.ResponseWriter, v any, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, err error) {
	code := statusCode(err)
	if code == http.StatusInternalServerError && !errors.Is(err, context.Canceled) {
		log.Printf("request failed: %v", err)
	}
	writeJSON(w, code, statusPayload{Message: userMessage(err)})
}
