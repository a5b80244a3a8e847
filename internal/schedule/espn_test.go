package schedule

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"sportsarb/internal/models"
)

func TestListLiveFiltersFinalGames(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"events":[
			{"id":"401","date":"2026-09-10T00:00:00Z","status":{"type":{"state":"in"}},
			 "competitions":[{"competitors":[
				{"homeAway":"home","team":{"displayName":"Chiefs"},"score":"14"},
				{"homeAway":"away","team":{"displayName":"Bills"},"score":"7"}
			 ]}]},
			{"id":"402","date":"2026-09-10T00:00:00Z","status":{"type":{"state":"post"}},
			 "competitions":[{"competitors":[
				{"homeAway":"home","team":{"displayName":"Cowboys"},"score":"30"},
				{"homeAway":"away","team":{"displayName":"Eagles"},"score":"20"}
			 ]}]}
		]}`))
	}))
	defer srv.Close()

	p := NewESPNProvider(srv.URL)
	games, err := p.ListLive(context.Background(), models.SportNFL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(games) != 1 {
		t.Fatalf("expected 1 live game (final filtered out), got %d", len(games))
	}
	if games[0].GameID != "401" || games[0].HomeTeam != "Chiefs" {
		t.Errorf("unexpected game: %+v", games[0])
	}
}

func TestListLiveRejectsUnmappedSport(t *testing.T) {
	p := NewESPNProvider("http://example.invalid")
	if _, err := p.ListLive(context.Background(), models.SportTennis); err == nil {
		t.Fatal("expected an error for a sport with no ESPN path mapping")
	}
}

func TestFetchFindsEventAcrossLeagues(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("event") != "401" {
			w.Write([]byte(`{"events":[]}`))
			return
		}
		w.Write([]byte(`{"events":[
			{"id":"401","status":{"type":{"state":"in"}},
			 "competitions":[{"competitors":[
				{"homeAway":"home","team":{"displayName":"Chiefs"},"score":"21"},
				{"homeAway":"away","team":{"displayName":"Bills"},"score":"14"}
			 ]}]}
		]}`))
	}))
	defer srv.Close()

	p := NewESPNProvider(srv.URL)
	gs, err := p.Fetch(context.Background(), "401")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gs.HomeScore != 21 || gs.AwayScore != 14 {
		t.Errorf("unexpected scores: %+v", gs)
	}
}

func TestMapStatusState(t *testing.T) {
	cases := map[string]string{"pre": models.GameStatePregame, "in": models.GameStateInProgress, "post": models.GameStateFinal, "weird": models.GameStateCancelled}
	for in, want := range cases {
		if got := mapStatusState(in); got != want {
			t.Errorf("mapStatusState(%q) = %q, want %q", in, got, want)
		}
	}
}
