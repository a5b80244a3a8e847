package discovery

import (
	"strings"

	"sportsarb/internal/models"
)

// resolver.go - сопоставление текста с именем команды
//
// Обобщение Agentchow-HFTKalshiGo/internal/core/ticker/resolver.go's
// Normalize/fuzzyContains для произвольного набора видов спорта вместо
// двух жёстко заданных (hockey/soccer): вместо одного booking per-sport
// resolver'а — оценка по шкале совпадения (§4.2), а не бинарное да/нет.

// mascotTokens maps a normalized team name to its mascot word, when the
// mascot alone is commonly used in text ("Lakers", "Chiefs").
var mascotTokens = map[string]string{
	"los angeles lakers":     "lakers",
	"kansas city chiefs":     "chiefs",
	"golden state warriors":  "warriors",
	"new york yankees":       "yankees",
	"boston celtics":         "celtics",
	"dallas cowboys":         "cowboys",
}

// AliasCorpus maps a normalized alias to the canonical normalized team
// name, loaded once at process start (the team-alias corpus is external
// to this core per the purpose/scope boundary).
type AliasCorpus map[string]string

// Normalize lowercases, strips punctuation, and collapses whitespace —
// the same shape as the teacher's ticker.Normalize, generalized to not
// depend on a fixed alias map argument shape.
func Normalize(name string, aliases AliasCorpus) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r == ' ':
			return r
		case r >= '0' && r <= '9':
			return r
		default:
			return -1
		}
	}, n)
	n = strings.Join(strings.Fields(n), " ")
	if canon, ok := aliases[n]; ok {
		return canon
	}
	return n
}

// MatchScore scores how well candidateText matches target team name,
// per §4.2's scoring ladder: exact (1.0), alias (0.95), mascot token
// (0.85), high-overlap fuzzy (0.6-0.85), low-fuzzy (<0.6).
func MatchScore(target, candidateText string, aliases AliasCorpus) float64 {
	targetNorm := Normalize(target, aliases)
	textRaw := Normalize(candidateText, nil)
	if targetNorm == "" || textRaw == "" {
		return 0
	}

	if targetNorm == textRaw {
		return 1.0
	}

	if canon, ok := aliases[textRaw]; ok && canon == targetNorm {
		return 0.95
	}
	textNorm := Normalize(candidateText, aliases)

	if mascot, ok := mascotTokens[targetNorm]; ok {
		for _, word := range strings.Fields(textNorm) {
			if word == mascot {
				return 0.85
			}
		}
	}

	overlap := tokenOverlap(targetNorm, textNorm)
	if overlap >= 0.6 {
		return 0.6 + (overlap-0.6)*(0.25/0.4) // map [0.6,1.0] -> [0.6,0.85]
	}
	return overlap
}

// tokenOverlap is a crude Jaccard-style overlap ratio over whitespace
// tokens, standing in for edit-distance fuzzy matching.
func tokenOverlap(a, b string) float64 {
	aTokens := strings.Fields(a)
	bTokens := strings.Fields(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0
	}
	bSet := make(map[string]bool, len(bTokens))
	for _, t := range bTokens {
		bSet[t] = true
	}
	matches := 0
	for _, t := range aTokens {
		if bSet[t] {
			matches++
		}
	}
	union := len(aTokens) + len(bTokens) - matches
	if union == 0 {
		return 0
	}
	return float64(matches) / float64(union)
}

// MatchRequest is the team-match RPC request shape on team:match:request.
type MatchRequest struct {
	RequestID     string      `json:"request_id"`
	TargetTeam    string      `json:"target_team"`
	CandidateTeam string      `json:"candidate_team"`
	Sport         models.Sport `json:"sport"`
}

// MatchResponse is published on team:match:response:{request_id}.
type MatchResponse struct {
	RequestID  string  `json:"request_id"`
	IsMatch    bool    `json:"is_match"`
	Confidence float64 `json:"confidence"`
}

// matchThreshold is the minimum score treated as a positive match.
const matchThreshold = 0.6

// Resolve evaluates a MatchRequest against both home/away context text to
// apply the contextual boost from §4.2: if both participant teams are
// found, boost; if a non-participant team is found, zero the score.
func Resolve(req MatchRequest, homeTeam, awayTeam string, aliases AliasCorpus) MatchResponse {
	score := MatchScore(req.TargetTeam, req.CandidateTeam, aliases)

	homeFound := MatchScore(homeTeam, req.CandidateTeam, aliases) >= matchThreshold
	awayFound := MatchScore(awayTeam, req.CandidateTeam, aliases) >= matchThreshold
	targetIsHome := Normalize(req.TargetTeam, aliases) == Normalize(homeTeam, aliases)
	targetIsAway := Normalize(req.TargetTeam, aliases) == Normalize(awayTeam, aliases)

	if homeFound && awayFound && (targetIsHome || targetIsAway) {
		score = clamp01(score + 0.1)
	} else if (homeFound || awayFound) && !targetIsHome && !targetIsAway {
		score = 0
	}

	return MatchResponse{
		RequestID:  req.RequestID,
		IsMatch:    score >= matchThreshold,
		Confidence: score,
	}
}

func clamp01(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
