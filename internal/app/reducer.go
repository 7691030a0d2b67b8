package app

import (
	"math/rand"
	"time"

	"rocketquiz/internal/domain"
	"rocketquiz/internal/quorum"
	"rocketquiz/internal/scoring"
	"rocketquiz/internal/timer"
)

// Phase is the locally derived game state.
type Phase string

const (
	PhaseLobby    Phase = "lobby"
	PhaseQuestion Phase = "question"
	PhaseReveal   Phase = "reveal"
	PhaseFinished Phase = "finished"
)

// RevealReason records which condition ended a question.
type RevealReason string

const (
	RevealQuorum  RevealReason = "quorum"
	RevealTimeout RevealReason = "timeout"
)

// PresentedOption is one answer in this client's display order. Index is the
// original position, which is what gets submitted and scored.
type PresentedOption struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// View is what one client renders.
type View struct {
	SessionID      string                    `json:"sessionId"`
	Phase          Phase                     `json:"phase"`
	Nickname       string                    `json:"nickname,omitempty"`
	Organizer      bool                      `json:"organizer"`
	Removed        bool                      `json:"removed,omitempty"`
	Players        []string                  `json:"players"`
	QuestionIndex  int                       `json:"questionIndex"`
	QuestionCount  int                       `json:"questionCount"`
	Question       string                    `json:"question,omitempty"`
	Options        []PresentedOption         `json:"options,omitempty"`
	Remaining      int                       `json:"remaining"`
	Active         int                       `json:"active"`
	Answered       int                       `json:"answered"`
	MyAnswer       *int                      `json:"myAnswer,omitempty"`
	RevealReason   RevealReason              `json:"revealReason,omitempty"`
	CorrectAnswer  *int                      `json:"correctAnswer,omitempty"`
	GraceRemaining int                       `json:"graceRemaining"`
	CanStart       bool                      `json:"canStart"`
	CanAdvance     bool                      `json:"canAdvance"`
	CanFinish      bool                      `json:"canFinish"`
	Leaderboard    []domain.LeaderboardEntry `json:"leaderboard"`

	// AdvanceDue is set for the organizer once the grace countdown is over.
	AdvanceDue bool `json:"-"`
}

// Local is the per-client state carried between snapshots.
type Local struct {
	Question   int
	Start      time.Time
	Order      []int
	Reason     RevealReason
	RevealedAt time.Time
	Started    bool
	Finished   bool
	// Discarded counts snapshots rejected as older than what was already shown.
	Discarded int

	seen bool
}

// Reducer turns snapshots into views for one client. It holds no state.
type Reducer struct {
	Nickname  string
	Organizer bool
	Grace     time.Duration
	Shuffle   func(n int) []int
}

// Stale reports whether a snapshot is older than what prev already showed:
// a lower question, an unfinished or unstarted session after the fact, or a
// different start marker for the same question.
func (l Local) Stale(session domain.Session) bool {
	if !l.seen {
		return false
	}
	switch {
	case session.CurrentQuestion < l.Question:
		return true
	case l.Finished && !session.Finished:
		return true
	case l.Started && !session.Started:
		return true
	}
	if session.CurrentQuestion == l.Question && !l.Start.IsZero() {
		start, ok := session.QuestionStart(session.CurrentQuestion)
		return !ok || !start.Equal(l.Start)
	}
	return false
}

// Reduce derives the next local state and view. Stale snapshots are counted
// and otherwise ignored; ok is false for them.
func (r Reducer) Reduce(prev Local, st State, quiz domain.Quiz, now time.Time) (Local, View, bool) {
	if prev.Stale(st.Session) {
		prev.Discarded++
		return prev, View{}, false
	}

	next := prev
	k := st.Session.CurrentQuestion
	if !prev.seen || k != prev.Question {
		next.Question = k
		next.Start = time.Time{}
		next.Order = nil
		next.Reason = ""
		next.RevealedAt = time.Time{}
	}
	next.seen = true
	next.Started = st.Session.Started
	next.Finished = st.Session.Finished
	if start, ok := st.Session.QuestionStart(k); ok {
		next.Start = start
	}

	view := r.render(&next, st, quiz, now)
	return next, view, true
}

func (r Reducer) render(l *Local, st State, quiz domain.Quiz, now time.Time) View {
	session := st.Session
	k := session.CurrentQuestion
	v := View{
		SessionID:     session.ID,
		Nickname:      r.Nickname,
		Organizer:     r.Organizer,
		Removed:       r.Nickname != "" && !st.HasPlayer(r.Nickname),
		Players:       st.Nicknames(),
		QuestionIndex: k,
		QuestionCount: len(quiz.Questions),
	}

	switch {
	case session.Finished:
		v.Phase = PhaseFinished
		v.Leaderboard = scoring.Leaderboard(session.FinalScores, session.FinalLeaderboard)
		return v
	case !session.Started:
		v.Phase = PhaseLobby
		v.CanStart = r.Organizer && len(st.Players) > 0
		return v
	case k < 0 || k >= len(quiz.Questions):
		v.Phase = PhaseQuestion
		return v
	}

	q := quiz.Questions[k]
	if l.Order == nil {
		l.Order = r.shuffle(q.OptionCount())
	}
	v.Question = q.Text
	v.Options = present(q, l.Order)

	active := quorum.ActivePlayers(st.Players)
	v.Active = len(active)
	v.Answered = quorum.Count(k, active, st.Answers)
	if r.Nickname != "" {
		if mine, ok := st.AnswerOf(r.Nickname, k); ok {
			choice := mine.Answer
			v.MyAnswer = &choice
		}
	}

	countdown := timer.Countdown{Epoch: l.Start, Limit: q.TimeLimit()}
	if l.Start.IsZero() {
		v.Remaining = int(q.TimeLimit() / time.Second)
	} else {
		v.Remaining = countdown.Seconds(now)
	}
	if l.Reason == "" {
		switch {
		case quorum.Reached(k, active, st.Answers):
			l.Reason, l.RevealedAt = RevealQuorum, now
		case countdown.Expired(now):
			l.Reason, l.RevealedAt = RevealTimeout, now
		}
	}
	revealed := l.Reason != ""
	v.Leaderboard = liveLeaderboard(st, quiz, revealed)
	if !revealed {
		v.Phase = PhaseQuestion
		return v
	}

	v.Phase = PhaseReveal
	v.RevealReason = l.Reason
	correct := q.CorrectAnswer
	v.CorrectAnswer = &correct
	grace := timer.Countdown{Epoch: l.RevealedAt, Limit: r.Grace}
	v.GraceRemaining = grace.Seconds(now)
	last := k == len(quiz.Questions)-1
	v.CanAdvance = r.Organizer && !last
	v.CanFinish = r.Organizer && last
	v.AdvanceDue = r.Organizer && grace.Expired(now)
	return v
}

func (r Reducer) shuffle(n int) []int {
	if r.Shuffle != nil {
		return r.Shuffle(n)
	}
	return Shuffle(n)
}

// liveLeaderboard scores every question before the current one, plus the
// current one once it has been revealed.
func liveLeaderboard(st State, quiz domain.Quiz, revealed bool) []domain.LeaderboardEntry {
	k := st.Session.CurrentQuestion
	visible := make([]domain.Answer, 0, len(st.Answers))
	for _, a := range st.Answers {
		if a.QIdx < k || (a.QIdx == k && revealed) {
			visible = append(visible, a)
		}
	}
	standings := scoring.Totals(backfillStarts(visible, st.Session), quiz.Questions)
	standings.Include(sortedNicknames(st.Players)...)
	return standings.Leaderboard()
}

func present(q domain.Question, order []int) []PresentedOption {
	out := make([]PresentedOption, 0, len(order))
	for _, idx := range order {
		text := ""
		if idx >= 0 && idx < len(q.Answers) {
			text = q.Answers[idx]
		}
		out = append(out, PresentedOption{Index: idx, Text: text})
	}
	return out
}

// Shuffle returns a Fisher-Yates permutation of 0..n-1.
func Shuffle(n int) []int {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	for i := n - 1; i > 0; i-- {
		j := rand.Intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order
}
