// Package results derives post-game statistics from a session's answer history.
// Nothing here mutates shared state.
package results

import (
	"time"

	"rocketquiz/internal/domain"
	"rocketquiz/internal/scoring"
)

// PlayerStats summarizes one player's game.
type PlayerStats struct {
	Nickname    string  `json:"nickname"`
	Score       int     `json:"score"`
	Answered    int     `json:"answered"`
	Correct     int     `json:"correct"`
	Accuracy    float64 `json:"accuracy"`
	AverageTime float64 `json:"averageTimeSeconds"`
}

// QuestionStats summarizes how one question went.
type QuestionStats struct {
	Index    int     `json:"index"`
	Text     string  `json:"text"`
	Attempts int     `json:"attempts"`
	Correct  int     `json:"correct"`
	Accuracy float64 `json:"accuracy"`
	Missed   int     `json:"missed"`
	// WrongAnswers counts incorrect picks per original option index.
	WrongAnswers map[int]int `json:"wrongAnswers"`
}

// Report is the rollup for a single finished session.
type Report struct {
	SessionID   string                    `json:"sessionId"`
	Leaderboard []domain.LeaderboardEntry `json:"leaderboard"`
	Players     []PlayerStats             `json:"players"`
	Questions   []QuestionStats           `json:"questions"`
}

// Input is everything a report is derived from.
type Input struct {
	SessionID   string
	Players     []domain.Player
	Answers     []domain.Answer
	Questions   []domain.Question
	FinalScores map[string]int
	Leaderboard []string
	// PlayerCount overrides len(Players) as the missed-answer denominator.
	PlayerCount int
}

// Analyze builds the report for one session. Players are listed in
// leaderboard order; anyone who answered but is no longer present is kept.
func Analyze(in Input) Report {
	answers := scoring.FirstAnswers(in.Answers)

	scores := in.FinalScores
	st := scoring.Totals(answers, in.Questions)
	if scores == nil {
		scores = st.Scores
	}
	order := append([]string(nil), in.Leaderboard...)
	order = append(order, st.Order...)
	for _, p := range in.Players {
		order = append(order, p.Nickname)
	}
	all := make(map[string]int, len(scores))
	for n, s := range scores {
		all[n] = s
	}
	for _, n := range order {
		if _, ok := all[n]; !ok {
			all[n] = 0
		}
	}
	board := scoring.Leaderboard(all, order)

	type acc struct {
		answered, correct int
		elapsed           time.Duration
	}
	perPlayer := make(map[string]*acc)
	questions := make([]QuestionStats, len(in.Questions))
	for i, q := range in.Questions {
		questions[i] = QuestionStats{Index: i, Text: q.Text, WrongAnswers: map[int]int{}}
	}

	for _, a := range answers {
		if a.QIdx < 0 || a.QIdx >= len(questions) || a.Answer == domain.NoAnswer {
			continue
		}
		pa := perPlayer[a.Nickname]
		if pa == nil {
			pa = &acc{}
			perPlayer[a.Nickname] = pa
		}
		pa.answered++
		pa.elapsed += a.Elapsed()

		qs := &questions[a.QIdx]
		qs.Attempts++
		if a.IsCorrect {
			pa.correct++
			qs.Correct++
		} else {
			qs.WrongAnswers[a.Answer]++
		}
	}

	playerCount := in.PlayerCount
	if playerCount == 0 {
		playerCount = len(in.Players)
	}
	for i := range questions {
		questions[i].Accuracy = ratio(questions[i].Correct, questions[i].Attempts)
		if missed := playerCount - questions[i].Attempts; missed > 0 {
			questions[i].Missed = missed
		}
	}

	players := make([]PlayerStats, 0, len(board))
	for _, e := range board {
		ps := PlayerStats{Nickname: e.Nickname, Score: e.Score}
		if pa := perPlayer[e.Nickname]; pa != nil {
			ps.Answered = pa.answered
			ps.Correct = pa.correct
			ps.Accuracy = ratio(pa.correct, pa.answered)
			ps.AverageTime = pa.elapsed.Seconds() / float64(pa.answered)
		}
		players = append(players, ps)
	}

	return Report{
		SessionID:   in.SessionID,
		Leaderboard: board,
		Players:     players,
		Questions:   questions,
	}
}

// SessionHistory is one archived session of a quiz.
type SessionHistory struct {
	SessionID   string
	PlayerCount int
	Answers     []domain.Answer
	FinalScores map[string]int
}

// QuizReport aggregates every archived session of one quiz.
type QuizReport struct {
	QuizID       string          `json:"quizId"`
	Sessions     int             `json:"sessions"`
	Players      int             `json:"players"`
	AverageScore float64         `json:"averageScore"`
	Questions    []QuestionStats `json:"questions"`
}

// AnalyzeHistory rolls question statistics up across sessions.
func AnalyzeHistory(quizID string, questions []domain.Question, sessions []SessionHistory) QuizReport {
	out := QuizReport{QuizID: quizID, Sessions: len(sessions)}
	out.Questions = make([]QuestionStats, len(questions))
	for i, q := range questions {
		out.Questions[i] = QuestionStats{Index: i, Text: q.Text, WrongAnswers: map[int]int{}}
	}

	total, scored := 0, 0
	for _, s := range sessions {
		out.Players += s.PlayerCount
		for _, v := range s.FinalScores {
			total += v
			scored++
		}
		rep := Analyze(Input{
			SessionID:   s.SessionID,
			Answers:     s.Answers,
			Questions:   questions,
			FinalScores: s.FinalScores,
			PlayerCount: s.PlayerCount,
		})
		for i, qs := range rep.Questions {
			dst := &out.Questions[i]
			dst.Attempts += qs.Attempts
			dst.Correct += qs.Correct
			dst.Missed += qs.Missed
			for opt, n := range qs.WrongAnswers {
				dst.WrongAnswers[opt] += n
			}
		}
	}
	for i := range out.Questions {
		out.Questions[i].Accuracy = ratio(out.Questions[i].Correct, out.Questions[i].Attempts)
	}
	if scored > 0 {
		out.AverageScore = float64(total) / float64(scored)
	}
	return out
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}
