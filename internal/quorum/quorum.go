// Package quorum decides when every active player has answered the current question.
package quorum

import "rocketquiz/internal/domain"

// ActivePlayers returns the nicknames counted toward the quorum. A nickname
// listed in exclude (a non-playing organizer, for example) is not counted.
func ActivePlayers(players []domain.Player, exclude ...string) []string {
	skip := make(map[string]struct{}, len(exclude))
	for _, n := range exclude {
		if n != "" {
			skip[n] = struct{}{}
		}
	}
	out := make([]string, 0, len(players))
	for _, p := range players {
		if _, ok := skip[p.Nickname]; ok {
			continue
		}
		out = append(out, p.Nickname)
	}
	return out
}

// Answered returns the distinct authors of answers to question k.
func Answered(k int, answers []domain.Answer) map[string]struct{} {
	out := make(map[string]struct{})
	for _, a := range answers {
		if a.QIdx == k {
			out[a.Nickname] = struct{}{}
		}
	}
	return out
}

// Reached reports whether every active player has an answer for question k.
// An empty player set never reaches quorum. Answers from players no longer
// active do not count.
func Reached(k int, active []string, answers []domain.Answer) bool {
	if len(active) == 0 {
		return false
	}
	answered := Answered(k, answers)
	for _, n := range active {
		if _, ok := answered[n]; !ok {
			return false
		}
	}
	return true
}

// Count returns how many active players have answered question k.
func Count(k int, active []string, answers []domain.Answer) int {
	answered := Answered(k, answers)
	n := 0
	for _, nick := range active {
		if _, ok := answered[nick]; ok {
			n++
		}
	}
	return n
}
