// Package scoring turns answers into points and points into rankings. Every
// function is pure so live and final standings can be recomputed from stored
// answers at any time.
package scoring

import (
	"math"
	"sort"
	"time"

	"rocketquiz/internal/domain"
)

const (
	// BasePoints is awarded for any correct answer.
	BasePoints = 1000
	// MaxSpeedBonus is added for an instant correct answer.
	MaxSpeedBonus = 1000

	decayExponent = 1.5
)

// Score returns the points for one answer: 0 when incorrect, otherwise
// BasePoints plus a bonus decaying with the share of the time limit used.
func Score(isCorrect bool, elapsed, limit time.Duration) int {
	if !isCorrect {
		return 0
	}
	if limit <= 0 {
		return BasePoints
	}
	if elapsed < 0 {
		elapsed = 0
	}
	remaining := math.Max(0, 1-elapsed.Seconds()/limit.Seconds())
	return BasePoints + int(math.Round(MaxSpeedBonus*math.Pow(remaining, decayExponent)))
}

// ScoreAnswer scores a stored answer against its question. The answer's own
// correctness flag and start copy are used as recorded by the client.
func ScoreAnswer(a domain.Answer, q domain.Question) int {
	return Score(a.IsCorrect, a.Elapsed(), q.TimeLimit())
}

// FirstAnswers keeps the earliest answer per (nickname, question) and returns
// them in chronological order, ties broken by document id.
func FirstAnswers(answers []domain.Answer) []domain.Answer {
	sorted := make([]domain.Answer, len(answers))
	copy(sorted, answers)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].AnsweredAt.Equal(sorted[j].AnsweredAt) {
			return sorted[i].AnsweredAt.Before(sorted[j].AnsweredAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	type key struct {
		nickname string
		qIdx     int
	}
	seen := make(map[key]struct{}, len(sorted))
	out := sorted[:0]
	for _, a := range sorted {
		k := key{a.Nickname, a.QIdx}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, a)
	}
	return out
}

// Standings are per-player totals plus the order in which players first
// appeared, which is the only tie-break a ranking uses.
type Standings struct {
	Scores map[string]int
	Order  []string
}

// Totals sums per-question scores for every answer belonging to a known question.
func Totals(answers []domain.Answer, questions []domain.Question) Standings {
	st := Standings{Scores: make(map[string]int)}
	for _, a := range FirstAnswers(answers) {
		if a.QIdx < 0 || a.QIdx >= len(questions) {
			continue
		}
		st.Include(a.Nickname)
		st.Scores[a.Nickname] += ScoreAnswer(a, questions[a.QIdx])
	}
	return st
}

// Include adds players with a zero total if they are not already present.
func (st *Standings) Include(nicknames ...string) {
	if st.Scores == nil {
		st.Scores = make(map[string]int)
	}
	for _, n := range nicknames {
		if _, ok := st.Scores[n]; ok {
			continue
		}
		st.Scores[n] = 0
		st.Order = append(st.Order, n)
	}
}

// Leaderboard ranks the standings by score descending.
func (st Standings) Leaderboard() []domain.LeaderboardEntry {
	return Leaderboard(st.Scores, st.Order)
}

// Leaderboard ranks scores descending. Equal scores keep their position in
// order; names missing from order follow it alphabetically.
func Leaderboard(scores map[string]int, order []string) []domain.LeaderboardEntry {
	names := make([]string, 0, len(scores))
	listed := make(map[string]struct{}, len(order))
	for _, n := range order {
		if _, ok := scores[n]; !ok {
			continue
		}
		if _, dup := listed[n]; dup {
			continue
		}
		listed[n] = struct{}{}
		names = append(names, n)
	}
	var rest []string
	for n := range scores {
		if _, ok := listed[n]; !ok {
			rest = append(rest, n)
		}
	}
	sort.Strings(rest)
	names = append(names, rest...)

	entries := make([]domain.LeaderboardEntry, len(names))
	for i, n := range names {
		entries[i] = domain.LeaderboardEntry{Nickname: n, Score: scores[n]}
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
	return entries
}

// Ranking is the nickname sequence of a leaderboard.
func Ranking(entries []domain.LeaderboardEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Nickname
	}
	return out
}

// RepairLeaderboard checks a stored leaderboard against the stored scores. It
// returns the existing value when it is a complete, correctly ordered ranking,
// otherwise a freshly derived one and true.
func RepairLeaderboard(scores map[string]int, order, existing []string) ([]string, bool) {
	if consistent(scores, existing) {
		return existing, false
	}
	return Ranking(Leaderboard(scores, order)), true
}

func consistent(scores map[string]int, board []string) bool {
	if len(board) != len(scores) {
		return false
	}
	seen := make(map[string]struct{}, len(board))
	for i, n := range board {
		s, ok := scores[n]
		if !ok {
			return false
		}
		if _, dup := seen[n]; dup {
			return false
		}
		seen[n] = struct{}{}
		if i > 0 && scores[board[i-1]] < s {
			return false
		}
	}
	return true
}
