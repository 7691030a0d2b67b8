package app_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rocketquiz/internal/app"
	"rocketquiz/internal/docstore"
	"rocketquiz/internal/domain"
	"rocketquiz/internal/infra/memory"
)

const organizer = "org-1"

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 5, 1, 18, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fixture struct {
	service *app.Service
	store   *memory.DocumentStore
	archive *memory.Archive
	clock   *fakeClock
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

var errTransient = errors.New("transient store error")

// flakyStore fails the next armed number of Merge calls.
type flakyStore struct {
	docstore.Store
	failMerges atomic.Int32
}

func (s *flakyStore) Merge(ctx context.Context, collection, id string, fields docstore.Fields) error {
	if s.failMerges.Add(-1) >= 0 {
		return errTransient
	}
	s.failMerges.Store(0)
	return s.Store.Merge(ctx, collection, id, fields)
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	return buildFixture(t, app.DefaultSettings(), func(s docstore.Store) docstore.Store { return s })
}

func buildFixture(t *testing.T, settings app.Settings, wrap func(docstore.Store) docstore.Store) fixture {
	t.Helper()
	clock := newFakeClock()
	store := memory.NewDocumentStoreWithClock(clock.Now)
	archive := memory.NewArchive()
	quizzes := memory.NewQuizRepository(memory.NewStaticQuizLoader(map[string]domain.Quiz{
		"quiz-1":   twoQuestionQuiz(),
		"quiz-gap": gapQuiz(),
	}), time.Minute)

	settings.PublicURL = "https://rocketquiz.test/play"
	settings.Tick = 5 * time.Millisecond
	service := app.NewService(wrap(store), quizzes, settings,
		app.WithArchive(archive),
		app.WithClock(clock.Now),
		app.WithIDs(func() string { return "s1" }),
		app.WithShuffle(identity),
	)
	return fixture{service: service, store: store, archive: archive, clock: clock}
}

func twoQuestionQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-1",
		Title: "Basics",
		Questions: []domain.Question{
			{Text: "2 + 2?", Answers: []string{"3", "4", "5"}, CorrectAnswer: 1, Time: 30},
			{Text: "Capital of France?", Answers: []string{"Paris", "Rome"}, CorrectAnswer: 0, Time: 30},
		},
	}
}

// gapQuiz has a correct answer whose text is missing.
func gapQuiz() domain.Quiz {
	return domain.Quiz{
		ID:    "quiz-gap",
		Title: "Gaps",
		Questions: []domain.Question{
			{Text: "Pick the third", Answers: []string{"a", "b"}, CorrectAnswer: 2, Time: 30},
		},
	}
}

// lobby creates session s1 and joins the given nicknames.
func (f fixture) lobby(t *testing.T, nicknames ...string) domain.Session {
	t.Helper()
	ctx := context.Background()
	session, err := f.service.CreateSession(ctx, "quiz-1", organizer)
	if err != nil {
		t.Fatalf("create session failed: %v", err)
	}
	for _, n := range nicknames {
		if _, err := f.service.Join(ctx, session.ID, n, false); err != nil {
			t.Fatalf("join %s failed: %v", n, err)
		}
	}
	return session
}
