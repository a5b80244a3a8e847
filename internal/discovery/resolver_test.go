package discovery

import (
	"testing"

	"sportsarb/internal/models"
)

func TestNormalize(t *testing.T) {
	aliases := AliasCorpus{"kc chiefs": "kansas city chiefs"}
	cases := map[string]string{
		"Kansas City Chiefs": "kansas city chiefs",
		"  Lakers!! ":         "lakers",
		"KC Chiefs":           "kansas city chiefs",
	}
	for in, want := range cases {
		if got := Normalize(in, aliases); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMatchScoreExact(t *testing.T) {
	aliases := AliasCorpus{}
	if got := MatchScore("Kansas City Chiefs", "Kansas City Chiefs", aliases); got != 1.0 {
		t.Errorf("got %v, want 1.0", got)
	}
}

func TestMatchScoreAlias(t *testing.T) {
	aliases := AliasCorpus{"kc chiefs": "kansas city chiefs"}
	got := MatchScore("Kansas City Chiefs", "KC Chiefs", aliases)
	if got != 0.95 {
		t.Errorf("got %v, want 0.95", got)
	}
}

func TestMatchScoreMascot(t *testing.T) {
	aliases := AliasCorpus{}
	got := MatchScore("Los Angeles Lakers", "Lakers win big tonight", aliases)
	if got != 0.85 {
		t.Errorf("got %v, want 0.85", got)
	}
}

func TestMatchScoreNoOverlap(t *testing.T) {
	aliases := AliasCorpus{}
	got := MatchScore("Boston Celtics", "Miami Heat", aliases)
	if got >= 0.6 {
		t.Errorf("got %v, want < 0.6 for unrelated teams", got)
	}
}

func TestResolveContextualBoost(t *testing.T) {
	aliases := AliasCorpus{}
	req := MatchRequest{RequestID: "r1", TargetTeam: "Boston Celtics", CandidateTeam: "Boston Celtics"}
	resp := Resolve(req, "Boston Celtics", "Miami Heat", aliases)
	if !resp.IsMatch {
		t.Fatal("expected match")
	}
}

func TestResolveZeroesNonParticipant(t *testing.T) {
	aliases := AliasCorpus{}
	req := MatchRequest{RequestID: "r1", TargetTeam: "Golden State Warriors", CandidateTeam: "Miami Heat"}
	resp := Resolve(req, "Boston Celtics", "Miami Heat", aliases)
	if resp.IsMatch {
		t.Fatal("candidate text matching a non-participant team should zero the score")
	}
}

func TestMarketCacheFreshAndStale(t *testing.T) {
	c := NewMarketCache()
	if _, refresh := c.Get("game-1"); !refresh {
		t.Fatal("missing entry should request a refresh")
	}
	c.Set("game-1", map[models.Platform][]MarketRef{
		models.PlatformKalshi: {{Platform: models.PlatformKalshi, MarketID: "KXNFL-KC-BUF"}},
	})
	markets, refresh := c.Get("game-1")
	if refresh {
		t.Fatal("freshly set entry should not request a refresh")
	}
	if len(markets[models.PlatformKalshi]) != 1 {
		t.Fatal("expected one cached market for kalshi")
	}
}

func TestCandidateAccepted(t *testing.T) {
	if !CandidateAccepted(0.8, 0.75) {
		t.Fatal("both legs above threshold should be accepted")
	}
	if CandidateAccepted(0.8, 0.5) {
		t.Fatal("one leg below threshold should be rejected")
	}
}
