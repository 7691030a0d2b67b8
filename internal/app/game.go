package app

import (
	"context"
	"errors"
	"log"
	"sort"

	"rocketquiz/internal/docstore"
	"rocketquiz/internal/domain"
	"rocketquiz/internal/results"
	"rocketquiz/internal/scoring"
)

func (s *Service) organizerSession(ctx context.Context, sessionID, organizerID string) (domain.Session, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if session.OrganizerID != organizerID {
		return domain.Session{}, domain.ErrNotOrganizer
	}
	return session, nil
}

// StartGame moves the lobby to question 0 and stamps its start.
func (s *Service) StartGame(ctx context.Context, sessionID, organizerID string) error {
	session, err := s.organizerSession(ctx, sessionID, organizerID)
	if err != nil {
		return err
	}
	switch {
	case session.Finished:
		return domain.ErrSessionFinished
	case session.Started:
		return domain.ErrAlreadyStarted
	}
	players, err := s.loadPlayers(ctx, sessionID)
	if err != nil {
		return err
	}
	if len(players) == 0 {
		return domain.ErrNoPlayers
	}
	err = s.store.Merge(ctx, sessionsCollection, sessionID, docstore.Fields{
		"started":         true,
		"currentQuestion": 0,
		"questionStartTimes": docstore.Fields{
			domain.QuestionKey(0): docstore.ServerTimestamp,
		},
	})
	if err != nil {
		return err
	}
	log.Printf("session %s: game started with %d players", sessionID, len(players))
	return nil
}

// SubmitAnswer records nickname's choice for question qIdx. The correctness
// flag and the question start copy are computed here, on the submitting
// side, and are not checked again by anyone.
func (s *Service) SubmitAnswer(ctx context.Context, sessionID, nickname string, qIdx, option int) (domain.Answer, error) {
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return domain.Answer{}, err
	}
	switch {
	case session.Finished:
		return domain.Answer{}, domain.ErrSessionFinished
	case !session.Started:
		return domain.Answer{}, domain.ErrNotStarted
	case qIdx != session.CurrentQuestion:
		return domain.Answer{}, domain.ErrStaleQuestion
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.Answer{}, err
	}
	if qIdx < 0 || qIdx >= len(quiz.Questions) {
		return domain.Answer{}, domain.ErrQuestionOutOfRange
	}
	question := quiz.Questions[qIdx]
	if option != domain.NoAnswer && (option < 0 || option >= question.OptionCount()) {
		return domain.Answer{}, domain.ErrOptionOutOfRange
	}
	if _, err := s.store.Get(ctx, playersCollection(sessionID), nickname); err != nil {
		if errors.Is(err, docstore.ErrNotFound) {
			return domain.Answer{}, domain.ErrPlayerNotFound
		}
		return domain.Answer{}, err
	}

	fields := docstore.Fields{
		"nickname":   nickname,
		"qIdx":       qIdx,
		"answer":     option,
		"answeredAt": docstore.ServerTimestamp,
		"isCorrect":  question.IsCorrect(option),
	}
	if start, ok := session.QuestionStart(qIdx); ok {
		fields["questionStart"] = start
	}
	id := AnswerID(qIdx, nickname)
	err = s.store.Create(ctx, answersCollection(sessionID), id, fields)
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return domain.Answer{}, domain.ErrAlreadyAnswered
	}
	if err != nil {
		return domain.Answer{}, err
	}

	doc, err := s.store.Get(ctx, answersCollection(sessionID), id)
	if err != nil {
		return domain.Answer{}, err
	}
	var answer domain.Answer
	if err := doc.Decode(&answer); err != nil {
		return domain.Answer{}, err
	}
	answer.ID = id
	return answer, nil
}

// AdvanceQuestion moves from question `from` to the next one. A caller that
// observed an older question gets ErrStaleQuestion and nothing is written,
// which keeps currentQuestion monotonic under retried clicks.
func (s *Service) AdvanceQuestion(ctx context.Context, sessionID, organizerID string, from int) error {
	session, err := s.organizerSession(ctx, sessionID, organizerID)
	if err != nil {
		return err
	}
	switch {
	case session.Finished:
		return domain.ErrSessionFinished
	case !session.Started:
		return domain.ErrNotStarted
	case session.CurrentQuestion != from:
		return domain.ErrStaleQuestion
	}
	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return err
	}
	next := from + 1
	if next >= len(quiz.Questions) {
		return domain.ErrQuestionOutOfRange
	}
	fields := docstore.Fields{"currentQuestion": next}
	if _, stamped := session.QuestionStart(next); !stamped {
		fields["questionStartTimes"] = docstore.Fields{
			domain.QuestionKey(next): docstore.ServerTimestamp,
		}
	}
	if err := s.store.Merge(ctx, sessionsCollection, sessionID, fields); err != nil {
		return err
	}
	log.Printf("session %s: advanced to question %d", sessionID, next)
	return nil
}

// FinishGame recomputes every score from the full answer history and writes
// the final results together with finished=true. Calling it again returns the
// stored results unchanged, only repairing a leaderboard that does not match
// the stored scores.
func (s *Service) FinishGame(ctx context.Context, sessionID, organizerID string) (domain.FinalResults, error) {
	session, err := s.organizerSession(ctx, sessionID, organizerID)
	if err != nil {
		return domain.FinalResults{}, err
	}
	if !session.Started {
		return domain.FinalResults{}, domain.ErrNotStarted
	}
	answers, err := s.loadAnswers(ctx, sessionID)
	if err != nil {
		return domain.FinalResults{}, err
	}
	if session.Finished {
		return s.repairFinished(ctx, session, answers)
	}

	quiz, err := s.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.FinalResults{}, err
	}
	if session.CurrentQuestion != len(quiz.Questions)-1 {
		return domain.FinalResults{}, domain.ErrStaleQuestion
	}
	players, err := s.loadPlayers(ctx, sessionID)
	if err != nil {
		return domain.FinalResults{}, err
	}

	st := scoring.Totals(backfillStarts(answers, session), quiz.Questions)
	st.Include(sortedNicknames(players)...)
	final := domain.FinalResults{
		SessionID:   sessionID,
		Scores:      st.Scores,
		Leaderboard: scoring.Ranking(st.Leaderboard()),
	}
	err = s.store.Merge(ctx, sessionsCollection, sessionID, docstore.Fields{
		"finalScores":      final.Scores,
		"finalLeaderboard": final.Leaderboard,
		"finished":         true,
		"finishedAt":       docstore.ServerTimestamp,
	})
	if err != nil {
		return domain.FinalResults{}, err
	}
	log.Printf("session %s: finished, %d scored players", sessionID, len(final.Scores))

	s.archiveFinished(ctx, sessionID, len(players), answers)
	return final, nil
}

func (s *Service) repairFinished(ctx context.Context, session domain.Session, answers []domain.Answer) (domain.FinalResults, error) {
	scores := session.FinalScores
	if scores == nil {
		scores = map[string]int{}
	}
	var order []string
	for _, a := range scoring.FirstAnswers(answers) {
		order = append(order, a.Nickname)
	}
	board, repaired := scoring.RepairLeaderboard(scores, order, session.FinalLeaderboard)
	if repaired {
		err := s.store.Merge(ctx, sessionsCollection, session.ID, docstore.Fields{
			"finalLeaderboard": board,
		})
		if err != nil {
			return domain.FinalResults{}, err
		}
		log.Printf("session %s: repaired final leaderboard", session.ID)
	}
	return domain.FinalResults{SessionID: session.ID, Scores: scores, Leaderboard: board}, nil
}

func (s *Service) archiveFinished(ctx context.Context, sessionID string, playerCount int, answers []domain.Answer) {
	if s.archive == nil {
		return
	}
	session, err := s.loadSession(ctx, sessionID)
	if err != nil {
		log.Printf("session %s: archive skipped: %v", sessionID, err)
		return
	}
	rec := ArchivedSession{Session: session, PlayerCount: playerCount, Answers: backfillStarts(answers, session)}
	if err := s.archive.SaveFinished(ctx, rec); err != nil {
		log.Printf("session %s: archive failed: %v", sessionID, err)
	}
}

// Results derives the statistics report of one session.
func (s *Service) Results(ctx context.Context, sessionID string) (results.Report, error) {
	st, err := s.State(ctx, sessionID)
	if err != nil {
		return results.Report{}, err
	}
	quiz, err := s.quizzes.GetQuiz(ctx, st.Session.QuizID)
	if err != nil {
		return results.Report{}, err
	}
	return results.Analyze(results.Input{
		SessionID:   sessionID,
		Players:     st.Players,
		Answers:     backfillStarts(st.Answers, st.Session),
		Questions:   quiz.Questions,
		FinalScores: st.Session.FinalScores,
		Leaderboard: st.Session.FinalLeaderboard,
	}), nil
}

// QuizAnalytics rolls up every archived session of a quiz.
func (s *Service) QuizAnalytics(ctx context.Context, quizID string) (results.QuizReport, error) {
	quiz, err := s.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return results.QuizReport{}, err
	}
	var history []results.SessionHistory
	if s.archive != nil {
		history, err = s.archive.History(ctx, quizID)
		if err != nil {
			return results.QuizReport{}, err
		}
	}
	return results.AnalyzeHistory(quizID, quiz.Questions, history), nil
}

// sortedNicknames orders players without answers alphabetically after everyone
// who has answered.
func sortedNicknames(players []domain.Player) []string {
	names := make([]string, len(players))
	for i, p := range players {
		names[i] = p.Nickname
	}
	sort.Strings(names)
	return names
}
