package app

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"rocketquiz/internal/docstore"
	"rocketquiz/internal/domain"
	"rocketquiz/internal/timer"
)

// Participant runs one client of the game protocol: it follows the shared
// session, re-renders on every change and every tick, and performs the
// writes its role is allowed to make.
type Participant struct {
	svc       *Service
	sessionID string
	clientID  string
	quiz      domain.Quiz
	reducer   Reducer
	views     chan View

	mu       sync.Mutex
	local    Local
	state    State
	hasState bool
	view     View
	// last question each automatic write was attempted for
	advancedFrom int
	timedOut     int
}

// Connect prepares a participant for sessionID. The organizer may connect
// without a nickname to spectate; anyone else joins the lobby first.
func (s *Service) Connect(ctx context.Context, sessionID, nickname, clientID string, rejoin bool) (*Participant, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	organizer := clientID != "" && clientID == session.OrganizerID

	nick := ""
	if nickname != "" || !organizer {
		player, err := s.Join(ctx, sessionID, nickname, rejoin)
		if err != nil {
			return nil, err
		}
		nick = player.Nickname
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return nil, err
	}
	return &Participant{
		svc:       s,
		sessionID: sessionID,
		clientID:  clientID,
		quiz:      quiz,
		reducer: Reducer{
			Nickname:  nick,
			Organizer: organizer,
			Grace:     s.settings.GracePeriod,
			Shuffle:   s.shuffle,
		},
		views:        make(chan View, 1),
		advancedFrom: -1,
		timedOut:     -1,
	}, nil
}

// Views delivers the latest rendered view. It is closed when Run returns.
func (p *Participant) Views() <-chan View {
	return p.views
}

// Nickname is empty for a spectating organizer.
func (p *Participant) Nickname() string {
	return p.reducer.Nickname
}

// Organizer reports whether this client controls the session.
func (p *Participant) Organizer() bool {
	return p.reducer.Organizer
}

// Current returns the most recent view.
func (p *Participant) Current() View {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.view
}

// Run follows the session until ctx ends. The local ticker is stopped before
// Run returns, so no callback outlives it.
func (p *Participant) Run(ctx context.Context) error {
	defer close(p.views)

	feed, stop, err := p.svc.Watch(ctx, p.sessionID)
	if err != nil {
		return err
	}
	defer stop()

	ticker := timer.Every(ctx, p.svc.settings.Tick, func(_ time.Time) {
		p.refresh(ctx)
	})
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case st, ok := <-feed:
			if !ok {
				return ctx.Err()
			}
			p.observe(ctx, st)
		}
	}
}

func (p *Participant) observe(ctx context.Context, st State) {
	p.mu.Lock()
	local, view, ok := p.reducer.Reduce(p.local, st, p.quiz, p.svc.now())
	p.local = local
	if !ok {
		p.mu.Unlock()
		return
	}
	p.state, p.hasState = st, true
	p.emitLocked(view)
	p.mu.Unlock()

	p.act(ctx, view)
}

func (p *Participant) refresh(ctx context.Context) {
	p.mu.Lock()
	if !p.hasState {
		p.mu.Unlock()
		return
	}
	local, view, ok := p.reducer.Reduce(p.local, p.state, p.quiz, p.svc.now())
	p.local = local
	if !ok {
		p.mu.Unlock()
		return
	}
	p.emitLocked(view)
	p.mu.Unlock()

	p.act(ctx, view)
}

// emitLocked is the only sender on p.views.
func (p *Participant) emitLocked(view View) {
	p.view = view
	docstore.Offer(p.views, view)
}

// claim marks question k in *slot and reports whether it was not already marked.
func (p *Participant) claim(slot *int, k int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if *slot == k {
		return false
	}
	*slot = k
	return true
}

// release undoes a claim on question k after a failed write, so the next
// tick or click tries again.
func (p *Participant) release(slot *int, k int, err error) {
	if err == nil || expected(err) {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if *slot == k {
		*slot = -1
	}
}

// act performs the automatic writes a view calls for: a player records the
// no-answer sentinel after a timeout, and the organizer moves on once the
// grace countdown is over.
func (p *Participant) act(ctx context.Context, view View) {
	if view.Phase != PhaseReveal {
		return
	}
	k := view.QuestionIndex
	if p.reducer.Nickname != "" && !view.Removed && view.MyAnswer == nil &&
		view.RevealReason == RevealTimeout && p.claim(&p.timedOut, k) {
		_, err := p.svc.SubmitAnswer(ctx, p.sessionID, p.reducer.Nickname, k, domain.NoAnswer)
		if err != nil && !expected(err) {
			log.Printf("session %s: %s timeout answer: %v", p.sessionID, p.reducer.Nickname, err)
		}
		p.release(&p.timedOut, k, err)
	}
	if view.AdvanceDue && p.svc.settings.AutoAdvance && p.claim(&p.advancedFrom, k) {
		err := p.moveOn(ctx, view)
		if err != nil && !expected(err) {
			log.Printf("session %s: auto advance from %d: %v", p.sessionID, k, err)
		}
		p.release(&p.advancedFrom, k, err)
	}
}

func (p *Participant) moveOn(ctx context.Context, view View) error {
	if view.CanFinish {
		_, err := p.svc.FinishGame(ctx, p.sessionID, p.clientID)
		return err
	}
	return p.svc.AdvanceQuestion(ctx, p.sessionID, p.clientID, view.QuestionIndex)
}

// expected filters races another client already won.
func expected(err error) bool {
	return errors.Is(err, domain.ErrStaleQuestion) ||
		errors.Is(err, domain.ErrAlreadyAnswered) ||
		errors.Is(err, domain.ErrSessionFinished) ||
		errors.Is(err, domain.ErrPlayerNotFound)
}

// Start begins the game. Organizer only.
func (p *Participant) Start(ctx context.Context) error {
	return p.svc.StartGame(ctx, p.sessionID, p.clientID)
}

// Answer submits option (an original answer index) for question qIdx while
// that question is still open locally.
func (p *Participant) Answer(ctx context.Context, qIdx, option int) error {
	if p.reducer.Nickname == "" {
		return domain.ErrPlayerNotFound
	}
	view := p.Current()
	switch {
	case view.Phase != PhaseQuestion || view.QuestionIndex != qIdx:
		return domain.ErrStaleQuestion
	case view.MyAnswer != nil:
		return domain.ErrAlreadyAnswered
	}
	_, err := p.svc.SubmitAnswer(ctx, p.sessionID, p.reducer.Nickname, qIdx, option)
	return err
}

// Next advances past the revealed question.
func (p *Participant) Next(ctx context.Context) error {
	if !p.reducer.Organizer {
		return domain.ErrNotOrganizer
	}
	view := p.Current()
	switch {
	case view.Phase == PhaseFinished:
		return domain.ErrSessionFinished
	case view.Phase != PhaseReveal:
		return domain.ErrNotRevealed
	case view.CanFinish:
		return domain.ErrQuestionOutOfRange
	}
	if !p.claim(&p.advancedFrom, view.QuestionIndex) {
		return nil
	}
	err := p.svc.AdvanceQuestion(ctx, p.sessionID, p.clientID, view.QuestionIndex)
	p.release(&p.advancedFrom, view.QuestionIndex, err)
	return err
}

// Finish ends the game from the last revealed question. Repeating it after
// the game is over is harmless.
func (p *Participant) Finish(ctx context.Context) error {
	if !p.reducer.Organizer {
		return domain.ErrNotOrganizer
	}
	view := p.Current()
	if view.Phase != PhaseFinished {
		if view.Phase != PhaseReveal {
			return domain.ErrNotRevealed
		}
		if !view.CanFinish {
			return domain.ErrStaleQuestion
		}
		p.claim(&p.advancedFrom, view.QuestionIndex)
	}
	_, err := p.svc.FinishGame(ctx, p.sessionID, p.clientID)
	p.release(&p.advancedFrom, view.QuestionIndex, err)
	return err
}

// Kick removes another player. Organizer only.
func (p *Participant) Kick(ctx context.Context, nickname string) error {
	return p.svc.Kick(ctx, p.sessionID, p.clientID, nickname)
}
