package cli

import "rocketquiz/internal/domain"

// sampleQuizzes is served when no database is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warm-up",
			Questions: []domain.Question{
				{Text: "What is 2 + 2?", Answers: []string{"3", "4", "5", "22"}, CorrectAnswer: 1, Time: 20},
				{Text: "Which planet is known as the Red Planet?", Answers: []string{"Venus", "Mars", "Jupiter", "Mercury"}, CorrectAnswer: 1, Time: 20},
				{Text: "How many continents are there?", Answers: []string{"5", "6", "7", "8"}, CorrectAnswer: 2, Time: 30},
			},
		},
	}
}
