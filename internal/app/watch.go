package app

import (
	"context"
	"log"

	"rocketquiz/internal/docstore"
)

const (
	haveSession = 1 << iota
	havePlayers
	haveAnswers
	haveAll = haveSession | havePlayers | haveAnswers
)

// Watch merges the session document and its players and answers
// sub-collections into one feed of full State snapshots. Delivery is
// latest-wins; stop releases all three subscriptions and closes the channel.
func (s *Service) Watch(ctx context.Context, sessionID string) (<-chan State, func(), error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, nil, err
	}
	ctx, cancel := context.WithCancel(ctx)

	sessionCh, stopSession, err := s.store.WatchDocument(ctx, sessionsCollection, sessionID)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	playersCh, stopPlayers, err := s.store.WatchCollection(ctx, playersCollection(sessionID))
	if err != nil {
		stopSession()
		cancel()
		return nil, nil, err
	}
	answersCh, stopAnswers, err := s.store.WatchCollection(ctx, answersCollection(sessionID))
	if err != nil {
		stopPlayers()
		stopSession()
		cancel()
		return nil, nil, err
	}

	out := make(chan State, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		defer stopAnswers()
		defer stopPlayers()
		defer stopSession()

		var st State
		have := 0
		for {
			select {
			case <-ctx.Done():
				return
			case doc, ok := <-sessionCh:
				if !ok {
					return
				}
				if !doc.Exists {
					continue
				}
				session, err := decodeSession(doc)
				if err != nil {
					log.Printf("watch %s: %v", sessionID, err)
					continue
				}
				st.Session = session
				have |= haveSession
			case docs, ok := <-playersCh:
				if !ok {
					return
				}
				st.Players = decodePlayers(docs)
				have |= havePlayers
			case docs, ok := <-answersCh:
				if !ok {
					return
				}
				st.Answers = decodeAnswers(docs)
				have |= haveAnswers
			}
			if have == haveAll {
				docstore.Offer(out, st)
			}
		}
	}()

	stop := func() {
		cancel()
		<-done
	}
	return out, stop, nil
}
