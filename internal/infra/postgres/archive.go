package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"rocketquiz/internal/app"
	"rocketquiz/internal/domain"
	"rocketquiz/internal/results"
	"rocketquiz/internal/scoring"
)

type sessionResult struct {
	bun.BaseModel `bun:"table:session_results"`

	SessionID        string         `bun:"session_id,pk"`
	QuizID           string         `bun:"quiz_id,notnull"`
	OrganizerID      string         `bun:"organizer_id,notnull"`
	PlayerCount      int            `bun:"player_count,notnull"`
	FinalScores      map[string]int `bun:"final_scores,type:jsonb,notnull"`
	FinalLeaderboard []string       `bun:"final_leaderboard,type:jsonb,notnull"`
	CreatedAt        time.Time      `bun:"created_at,notnull"`
	FinishedAt       time.Time      `bun:"finished_at,notnull"`
}

type answerRecord struct {
	bun.BaseModel `bun:"table:answer_history"`

	SessionID     string    `bun:"session_id,pk"`
	QIdx          int       `bun:"q_idx,pk"`
	Nickname      string    `bun:"nickname,pk"`
	Answer        int       `bun:"answer,notnull"`
	IsCorrect     bool      `bun:"is_correct,notnull"`
	AnsweredAt    time.Time `bun:"answered_at,notnull"`
	QuestionStart time.Time `bun:"question_start,nullzero"`
}

// Archive stores finished sessions and their answer history with bun.
type Archive struct {
	db *bun.DB
}

func NewArchive(db *bun.DB) *Archive {
	return &Archive{db: db}
}

// SaveFinished writes the session row and its first answers in one
// transaction. Saving the same session again updates the row and leaves
// existing answers alone.
func (a *Archive) SaveFinished(ctx context.Context, rec app.ArchivedSession) error {
	s := rec.Session
	row := &sessionResult{
		SessionID:        s.ID,
		QuizID:           s.QuizID,
		OrganizerID:      s.OrganizerID,
		PlayerCount:      rec.PlayerCount,
		FinalScores:      s.FinalScores,
		FinalLeaderboard: s.FinalLeaderboard,
		CreatedAt:        s.CreatedAt,
		FinishedAt:       time.Now().UTC(),
	}
	if s.FinishedAt != nil {
		row.FinishedAt = *s.FinishedAt
	}
	if row.FinalScores == nil {
		row.FinalScores = map[string]int{}
	}
	if row.FinalLeaderboard == nil {
		row.FinalLeaderboard = []string{}
	}

	first := scoring.FirstAnswers(rec.Answers)
	answers := make([]answerRecord, 0, len(first))
	for _, ans := range first {
		answers = append(answers, answerRecord{
			SessionID:     s.ID,
			QIdx:          ans.QIdx,
			Nickname:      ans.Nickname,
			Answer:        ans.Answer,
			IsCorrect:     ans.IsCorrect,
			AnsweredAt:    ans.AnsweredAt,
			QuestionStart: ans.QuestionStart,
		})
	}

	return a.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().Model(row).
			On("CONFLICT (session_id) DO UPDATE").
			Set("player_count = EXCLUDED.player_count").
			Set("final_scores = EXCLUDED.final_scores").
			Set("final_leaderboard = EXCLUDED.final_leaderboard").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("archive session %s: %w", s.ID, err)
		}
		if len(answers) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&answers).On("CONFLICT DO NOTHING").Exec(ctx); err != nil {
			return fmt.Errorf("archive answers %s: %w", s.ID, err)
		}
		return nil
	})
}

// History returns every archived session of quizID, oldest first.
func (a *Archive) History(ctx context.Context, quizID string) ([]results.SessionHistory, error) {
	var sessions []sessionResult
	err := a.db.NewSelect().Model(&sessions).
		Where("quiz_id = ?", quizID).
		Order("finished_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sessions of %s: %w", quizID, err)
	}
	if len(sessions) == 0 {
		return nil, nil
	}

	ids := make([]string, len(sessions))
	for i, s := range sessions {
		ids[i] = s.SessionID
	}
	var rows []answerRecord
	err = a.db.NewSelect().Model(&rows).
		Where("session_id IN (?)", bun.In(ids)).
		Order("answered_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list answers of %s: %w", quizID, err)
	}
	bySession := make(map[string][]domain.Answer, len(sessions))
	for _, r := range rows {
		bySession[r.SessionID] = append(bySession[r.SessionID], domain.Answer{
			Nickname:      r.Nickname,
			QIdx:          r.QIdx,
			Answer:        r.Answer,
			IsCorrect:     r.IsCorrect,
			AnsweredAt:    r.AnsweredAt,
			QuestionStart: r.QuestionStart,
		})
	}

	out := make([]results.SessionHistory, len(sessions))
	for i, s := range sessions {
		out[i] = results.SessionHistory{
			SessionID:   s.SessionID,
			PlayerCount: s.PlayerCount,
			Answers:     bySession[s.SessionID],
			FinalScores: s.FinalScores,
		}
	}
	return out, nil
}
