package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"

	"rocketquiz/internal/docstore"
	"rocketquiz/internal/domain"
)

const sessionsCollection = "sessions"

func playersCollection(sessionID string) string {
	return sessionsCollection + "/" + sessionID + "/players"
}

func answersCollection(sessionID string) string {
	return sessionsCollection + "/" + sessionID + "/answers"
}

// AnswerID is the document id of a player's answer to question qIdx. Using a
// deterministic id lets the store reject a second submission.
func AnswerID(qIdx int, nickname string) string {
	return fmt.Sprintf("%d-%s", qIdx, nickname)
}

// State is one observed snapshot of a session and its sub-collections.
type State struct {
	Session domain.Session
	Players []domain.Player
	Answers []domain.Answer
}

// Nicknames lists present players in join order.
func (st State) Nicknames() []string {
	out := make([]string, len(st.Players))
	for i, p := range st.Players {
		out[i] = p.Nickname
	}
	return out
}

// HasPlayer reports whether nickname is present.
func (st State) HasPlayer(nickname string) bool {
	for _, p := range st.Players {
		if p.Nickname == nickname {
			return true
		}
	}
	return false
}

// AnswerOf returns nickname's answer to question k.
func (st State) AnswerOf(nickname string, k int) (domain.Answer, bool) {
	for _, a := range st.Answers {
		if a.Nickname == nickname && a.QIdx == k {
			return a, true
		}
	}
	return domain.Answer{}, false
}

func (s *Service) loadSession(ctx context.Context, sessionID string) (domain.Session, error) {
	doc, err := s.store.Get(ctx, sessionsCollection, sessionID)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	return decodeSession(doc)
}

func (s *Service) loadPlayers(ctx context.Context, sessionID string) ([]domain.Player, error) {
	docs, err := s.store.List(ctx, playersCollection(sessionID))
	if err != nil {
		return nil, err
	}
	return decodePlayers(docs), nil
}

func (s *Service) loadAnswers(ctx context.Context, sessionID string) ([]domain.Answer, error) {
	docs, err := s.store.List(ctx, answersCollection(sessionID))
	if err != nil {
		return nil, err
	}
	return decodeAnswers(docs), nil
}

// State reads the current snapshot of a session.
func (s *Service) State(ctx context.Context, sessionID string) (State, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	players, err := s.loadPlayers(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	answers, err := s.loadAnswers(ctx, sessionID)
	if err != nil {
		return State{}, err
	}
	return State{Session: session, Players: players, Answers: answers}, nil
}

func decodeSession(doc docstore.Document) (domain.Session, error) {
	var session domain.Session
	if err := doc.Decode(&session); err != nil {
		return domain.Session{}, err
	}
	session.ID = doc.ID
	return session, nil
}

// decodePlayers skips malformed entries rather than failing the whole snapshot.
func decodePlayers(docs []docstore.Document) []domain.Player {
	players := make([]domain.Player, 0, len(docs))
	for _, doc := range docs {
		var p domain.Player
		if err := doc.Decode(&p); err != nil {
			log.Printf("skipping player %s: %v", doc.ID, err)
			continue
		}
		if p.Nickname == "" {
			p.Nickname = doc.ID
		}
		players = append(players, p)
	}
	sort.SliceStable(players, func(i, j int) bool {
		if !players[i].JoinedAt.Equal(players[j].JoinedAt) {
			return players[i].JoinedAt.Before(players[j].JoinedAt)
		}
		return players[i].Nickname < players[j].Nickname
	})
	return players
}

func decodeAnswers(docs []docstore.Document) []domain.Answer {
	answers := make([]domain.Answer, 0, len(docs))
	for _, doc := range docs {
		var a domain.Answer
		if err := doc.Decode(&a); err != nil {
			log.Printf("skipping answer %s: %v", doc.ID, err)
			continue
		}
		a.ID = doc.ID
		answers = append(answers, a)
	}
	return answers
}

// backfillStarts fills a missing questionStart copy from the session's markers.
func backfillStarts(answers []domain.Answer, session domain.Session) []domain.Answer {
	out := make([]domain.Answer, len(answers))
	for i, a := range answers {
		if a.QuestionStart.IsZero() {
			if start, ok := session.QuestionStart(a.QIdx); ok {
				a.QuestionStart = start
			}
		}
		out[i] = a
	}
	return out
}
