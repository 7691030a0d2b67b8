package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session document does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrNicknameLength rejects nicknames outside 2..20 characters.
	ErrNicknameLength = errors.New("nickname must be between 2 and 20 characters")
	// ErrNicknameTaken is returned when another player already holds the nickname.
	ErrNicknameTaken = errors.New("nickname is already taken")
	// ErrPlayerNotFound is returned when acting on a nickname that is not present.
	ErrPlayerNotFound = errors.New("player not found in session")
	// ErrNotOrganizer guards organizer-only transitions.
	ErrNotOrganizer = errors.New("only the organizer can do that")
	// ErrNoPlayers blocks starting a game from an empty lobby.
	ErrNoPlayers = errors.New("at least one player must join before starting")
	// ErrAlreadyStarted is returned when starting a running game.
	ErrAlreadyStarted = errors.New("game already started")
	// ErrNotStarted is returned for in-game actions while still in the lobby.
	ErrNotStarted = errors.New("game has not started")
	// ErrSessionFinished is returned for mutations after the terminal state.
	ErrSessionFinished = errors.New("game is finished")
	// ErrStaleQuestion means the caller acted on a question that is no longer current.
	ErrStaleQuestion = errors.New("question is no longer current")
	// ErrNotRevealed blocks advancing before the current question is revealed.
	ErrNotRevealed = errors.New("answers have not been revealed yet")
	// ErrQuestionOutOfRange indicates a question index outside the quiz.
	ErrQuestionOutOfRange = errors.New("question index out of range")
	// ErrOptionOutOfRange indicates a selected option outside the question's answers.
	ErrOptionOutOfRange = errors.New("option index out of range")
	// ErrAlreadyAnswered is returned when a player submits twice for one question.
	ErrAlreadyAnswered = errors.New("answer already submitted for this question")
)

var validationErrors = []error{
	ErrNicknameLength,
	ErrNicknameTaken,
	ErrNotOrganizer,
	ErrNoPlayers,
	ErrAlreadyStarted,
	ErrNotStarted,
	ErrSessionFinished,
	ErrAlreadyAnswered,
	ErrStaleQuestion,
	ErrNotRevealed,
	ErrOptionOutOfRange,
	ErrQuestionOutOfRange,
	ErrPlayerNotFound,
	ErrSessionNotFound,
	ErrQuizNotFound,
}

// IsValidation reports whether err is one of the recoverable errors a user
// can act on.
func IsValidation(err error) bool {
	_, ok := validationTarget(err)
	return ok
}

// UserMessage converts an error into the status string shown to a user.
// Validation errors are shown verbatim; anything else is a transient failure.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if target, ok := validationTarget(err); ok {
		return target.Error()
	}
	return "something went wrong, please try again"
}

func validationTarget(err error) (error, bool) {
	for _, target := range validationErrors {
		if errors.Is(err, target) {
			return target, true
		}
	}
	return nil, false
}
