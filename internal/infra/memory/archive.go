package memory

import (
	"context"
	"sync"

	"rocketquiz/internal/app"
	"rocketquiz/internal/results"
)

// Archive keeps finished sessions in memory, grouped by quiz.
type Archive struct {
	mu     sync.Mutex
	byQuiz map[string][]app.ArchivedSession
}

// NewArchive returns an empty archive.
func NewArchive() *Archive {
	return &Archive{byQuiz: make(map[string][]app.ArchivedSession)}
}

// SaveFinished stores rec, replacing an earlier copy of the same session.
func (a *Archive) SaveFinished(_ context.Context, rec app.ArchivedSession) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	quizID := rec.Session.QuizID
	list := a.byQuiz[quizID]
	for i, existing := range list {
		if existing.Session.ID == rec.Session.ID {
			list[i] = rec
			return nil
		}
	}
	a.byQuiz[quizID] = append(list, rec)
	return nil
}

func (a *Archive) History(_ context.Context, quizID string) ([]results.SessionHistory, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	list := a.byQuiz[quizID]
	out := make([]results.SessionHistory, 0, len(list))
	for _, rec := range list {
		out = append(out, results.SessionHistory{
			SessionID:   rec.Session.ID,
			PlayerCount: rec.PlayerCount,
			Answers:     rec.Answers,
			FinalScores: rec.Session.FinalScores,
		})
	}
	return out, nil
}
