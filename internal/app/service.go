package app

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"

	"rocketquiz/internal/docstore"
	"rocketquiz/internal/domain"
	"rocketquiz/internal/results"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// ArchivedSession is what a finished session leaves behind for analytics.
type ArchivedSession struct {
	Session     domain.Session
	PlayerCount int
	Answers     []domain.Answer
}

// Archive keeps finished sessions after the shared documents expire.
type Archive interface {
	SaveFinished(ctx context.Context, rec ArchivedSession) error
	History(ctx context.Context, quizID string) ([]results.SessionHistory, error)
}

// Settings tune the game loop run by participant agents.
type Settings struct {
	// PublicURL is the page players open; the session id is appended as ?session=.
	PublicURL   string
	GracePeriod time.Duration
	Tick        time.Duration
	AutoAdvance bool
}

// DefaultSettings mirror the stock game: 10s reveal grace and one second ticks.
func DefaultSettings() Settings {
	return Settings{
		PublicURL:   "http://localhost:8080/play",
		GracePeriod: 10 * time.Second,
		Tick:        time.Second,
		AutoAdvance: true,
	}
}

// Service contains the multiplayer session use cases. It never keeps game
// state of its own; everything lives in the shared document store.
type Service struct {
	store    docstore.Store
	quizzes  QuizRepository
	archive  Archive
	settings Settings
	now      func() time.Time
	newID    func() string
	shuffle  func(n int) []int
}

// Option customizes a Service.
type Option func(*Service)

// WithArchive stores finished sessions for quiz analytics.
func WithArchive(a Archive) Option {
	return func(s *Service) { s.archive = a }
}

// WithClock is test-only for deterministic local timers.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDs replaces the random session id generator.
func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

// WithShuffle replaces the per-client option order generator.
func WithShuffle(shuffle func(n int) []int) Option {
	return func(s *Service) { s.shuffle = shuffle }
}

// NewService builds a Service over store. Zero settings fall back to DefaultSettings.
func NewService(store docstore.Store, quizzes QuizRepository, settings Settings, opts ...Option) *Service {
	defaults := DefaultSettings()
	if settings.GracePeriod <= 0 {
		settings.GracePeriod = defaults.GracePeriod
	}
	if settings.Tick <= 0 {
		settings.Tick = defaults.Tick
	}
	if settings.PublicURL == "" {
		settings.PublicURL = defaults.PublicURL
	}
	s := &Service{
		store:    store,
		quizzes:  quizzes,
		settings: settings,
		now:      time.Now,
		newID:    func() string { return uuid.New().String() },
		shuffle:  Shuffle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Settings returns the effective game settings.
func (s *Service) Settings() Settings {
	return s.settings
}

// JoinURL is the shareable link for a session.
func (s *Service) JoinURL(sessionID string) string {
	sep := "?"
	if strings.Contains(s.settings.PublicURL, "?") {
		sep = "&"
	}
	return s.settings.PublicURL + sep + "session=" + url.QueryEscape(sessionID)
}

// QRCode renders the join link as a PNG of size x size pixels.
func (s *Service) QRCode(ctx context.Context, sessionID string, size int) ([]byte, error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(s.JoinURL(sessionID), qrcode.Medium, size)
}
