package app

import (
	"context"
	"errors"
	"log"
	"strings"
	"unicode/utf8"

	"rocketquiz/internal/docstore"
	"rocketquiz/internal/domain"
)

const (
	minNicknameLength = 2
	maxNicknameLength = 20
)

// NormalizeNickname trims surrounding space and enforces the length rule.
// Uniqueness is case-sensitive, so the case is left alone.
func NormalizeNickname(raw string) (string, error) {
	nick := strings.TrimSpace(raw)
	n := utf8.RuneCountInString(nick)
	if n < minNicknameLength || n > maxNicknameLength {
		return "", domain.ErrNicknameLength
	}
	return nick, nil
}

// CreateSession opens a lobby for quizID owned by organizerID.
func (s *Service) CreateSession(ctx context.Context, quizID, organizerID string) (domain.Session, error) {
	if _, err := s.quizzes.GetQuiz(ctx, quizID); err != nil {
		return domain.Session{}, err
	}
	id := s.newID()
	err := s.store.Create(ctx, sessionsCollection, id, docstore.Fields{
		"id":              id,
		"quizId":          quizID,
		"organizerId":     organizerID,
		"createdAt":       docstore.ServerTimestamp,
		"started":         false,
		"currentQuestion": 0,
		"finished":        false,
	})
	if err != nil {
		return domain.Session{}, err
	}
	log.Printf("session %s created for quiz %s", id, quizID)
	return s.loadSession(ctx, id)
}

// Join adds nickname to the lobby. With rejoin set, an existing entry under
// the same nickname is reclaimed silently instead of reported as taken.
func (s *Service) Join(ctx context.Context, sessionID, nickname string, rejoin bool) (domain.Player, error) {
	nick, err := NormalizeNickname(nickname)
	if err != nil {
		return domain.Player{}, err
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return domain.Player{}, err
	}
	if session.Finished {
		return domain.Player{}, domain.ErrSessionFinished
	}

	players, err := s.loadPlayers(ctx, sessionID)
	if err != nil {
		return domain.Player{}, err
	}
	for _, p := range players {
		if p.Nickname != nick {
			continue
		}
		if rejoin {
			return p, nil
		}
		return domain.Player{}, domain.ErrNicknameTaken
	}

	// The nickname is the document id, so a concurrent join of the same name
	// collapses into one entry here.
	err = s.store.Create(ctx, playersCollection(sessionID), nick, docstore.Fields{
		"nickname": nick,
		"joinedAt": docstore.ServerTimestamp,
	})
	if errors.Is(err, docstore.ErrAlreadyExists) {
		if !rejoin {
			return domain.Player{}, domain.ErrNicknameTaken
		}
	} else if err != nil {
		return domain.Player{}, err
	}

	doc, err := s.store.Get(ctx, playersCollection(sessionID), nick)
	if err != nil {
		return domain.Player{}, err
	}
	var player domain.Player
	if err := doc.Decode(&player); err != nil {
		return domain.Player{}, err
	}
	log.Printf("session %s: %s joined", sessionID, nick)
	return player, nil
}

// Kick removes a player's presence entry. Their recorded answers stay.
func (s *Service) Kick(ctx context.Context, sessionID, organizerID, nickname string) error {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.OrganizerID != organizerID {
		return domain.ErrNotOrganizer
	}
	err = s.store.Delete(ctx, playersCollection(sessionID), nickname)
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.ErrPlayerNotFound
	}
	if err != nil {
		return err
	}
	log.Printf("session %s: %s removed by organizer", sessionID, nickname)
	return nil
}
