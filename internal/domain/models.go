package domain

import (
	"strconv"
	"time"
)

// NoAnswer is the sentinel option index recorded when a player let the timer run out.
const NoAnswer = -1

// Question is a single multiple choice question. CorrectAnswer indexes Answers.
type Question struct {
	Text          string   `json:"text"`
	Answers       []string `json:"answers"`
	CorrectAnswer int      `json:"correctAnswer"`
	Time          int      `json:"time"` // seconds allotted
}

// TimeLimit returns the allotted time as a duration, defaulting to 30s when unset.
func (q Question) TimeLimit() time.Duration {
	if q.Time <= 0 {
		return 30 * time.Second
	}
	return time.Duration(q.Time) * time.Second
}

// IsCorrect reports whether option is the correct answer. The sentinel never is.
func (q Question) IsCorrect(option int) bool {
	return option != NoAnswer && option == q.CorrectAnswer
}

// OptionCount is the number of selectable options. It covers the correct
// answer index even when that answer's text is missing.
func (q Question) OptionCount() int {
	n := len(q.Answers)
	if q.CorrectAnswer >= n {
		n = q.CorrectAnswer + 1
	}
	return n
}

// Quiz is read-only content played by a session.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Session is the shared document every client of a game subscribes to.
// Lifecycle fields are written by the organizer only.
type Session struct {
	ID                 string               `json:"id"`
	QuizID             string               `json:"quizId"`
	OrganizerID        string               `json:"organizerId"`
	CreatedAt          time.Time            `json:"createdAt"`
	Started            bool                 `json:"started"`
	CurrentQuestion    int                  `json:"currentQuestion"`
	QuestionStartTimes map[string]time.Time `json:"questionStartTimes,omitempty"`
	Finished           bool                 `json:"finished"`
	FinalScores        map[string]int       `json:"finalScores,omitempty"`
	FinalLeaderboard   []string             `json:"finalLeaderboard,omitempty"`
	FinishedAt         *time.Time           `json:"finishedAt,omitempty"`
}

// QuestionStart returns the start marker for question k, if it has been stamped.
func (s Session) QuestionStart(k int) (time.Time, bool) {
	t, ok := s.QuestionStartTimes[QuestionKey(k)]
	if !ok || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}

// QuestionKey is the map key used for question k in QuestionStartTimes.
func QuestionKey(k int) string {
	return strconv.Itoa(k)
}

// Player is a presence entry keyed by nickname.
type Player struct {
	Nickname string    `json:"nickname"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Answer is one submission. IsCorrect and QuestionStart are supplied by the
// submitting client and are not verified by anyone else.
type Answer struct {
	ID            string    `json:"id,omitempty"`
	Nickname      string    `json:"nickname"`
	QIdx          int       `json:"qIdx"`
	Answer        int       `json:"answer"`
	AnsweredAt    time.Time `json:"answeredAt"`
	IsCorrect     bool      `json:"isCorrect"`
	QuestionStart time.Time `json:"questionStart"`
}

// Elapsed is the time between the copied question start and the answer, never negative.
func (a Answer) Elapsed() time.Duration {
	d := a.AnsweredAt.Sub(a.QuestionStart)
	if d < 0 {
		return 0
	}
	return d
}

// LeaderboardEntry is a ranked row.
type LeaderboardEntry struct {
	Nickname string `json:"nickname"`
	Score    int    `json:"score"`
}

// FinalResults is what the finish transition writes.
type FinalResults struct {
	SessionID   string         `json:"sessionId"`
	Scores      map[string]int `json:"scores"`
	Leaderboard []string       `json:"leaderboard"`
}
