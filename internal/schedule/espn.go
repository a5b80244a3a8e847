package schedule

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"sportsarb/internal/models"
	"sportsarb/pkg/utils"
)

// espn.go - клиент ESPN-подобного провайдера расписания
//
// Adapted from internal/venue/polymarket.go's resty-client shape: один
// *resty.Client на базовый URL, типизированные wire-структуры,
// результат перекладывается в доменные модели на границе. sportLeague
// map даёт path-сегменты /apis/site/v2/sports/{sport}/{league}/scoreboard,
// оба сегмента проверяются ValidateSportToken/ValidateLeagueToken перед
// тем как попасть в URL (§6: "reject any segment with non-[A-Za-z0-9.-]
// characters").

const defaultScheduleTimeout = 10 * time.Second

// sportLeaguePath maps a domain Sport to ESPN's (sport, league) path
// segments. Only sports whose league token is in pkg/utils's fixed
// allowlist are discoverable via this provider; tennis/soccer/MMA still
// get a win-probability model (internal/shard's generic clock-logistic
// fallback) but have no ESPN discovery mapping here.
var sportLeaguePath = map[models.Sport][2]string{
	models.SportNFL:   {"football", "nfl"},
	models.SportNCAAF: {"football", "college-football"},
	models.SportNBA:   {"basketball", "nba"},
	models.SportNCAAB: {"basketball", "ncaab"},
	models.SportNHL:   {"hockey", "nhl"},
	models.SportMLB:   {"baseball", "mlb"},
	models.SportMLS:   {"soccer", "mls"},
}

// ESPNProvider implements Provider against ESPN's public site API.
type ESPNProvider struct {
	http   *resty.Client
	logger *utils.Logger
}

// NewESPNProvider builds a provider rooted at baseURL, e.g.
// "https://site.api.espn.com/apis/site/v2/sports".
func NewESPNProvider(baseURL string) *ESPNProvider {
	return &ESPNProvider{
		http:   resty.New().SetBaseURL(baseURL).SetTimeout(defaultScheduleTimeout),
		logger: utils.L().WithComponent("schedule-espn"),
	}
}

type espnScoreboard struct {
	Events []espnEvent `json:"events"`
}

type espnEvent struct {
	ID        string          `json:"id"`
	Date      time.Time       `json:"date"`
	Status    espnStatus      `json:"status"`
	Competitions []espnCompetition `json:"competitions"`
}

type espnStatus struct {
	Type espnStatusType `json:"type"`
}

type espnStatusType struct {
	State string `json:"state"` // "pre"|"in"|"post"
}

type espnCompetition struct {
	Competitors []espnCompetitor `json:"competitors"`
	Status      espnStatus       `json:"status"`
}

type espnCompetitor struct {
	HomeAway string     `json:"homeAway"`
	Team     espnTeam   `json:"team"`
	Score    string     `json:"score"`
}

type espnTeam struct {
	DisplayName string `json:"displayName"`
}

// ListLive fetches sport's scoreboard and returns every game that is
// pregame or in-progress (final/cancelled games are not candidates for
// new shard assignment).
func (p *ESPNProvider) ListLive(ctx context.Context, sport models.Sport) ([]models.Game, error) {
	sportSeg, leagueSeg, err := segmentsFor(sport)
	if err != nil {
		return nil, err
	}

	var board espnScoreboard
	resp, err := p.http.R().SetContext(ctx).SetResult(&board).
		Get(fmt.Sprintf("/%s/%s/scoreboard", sportSeg, leagueSeg))
	if err != nil {
		return nil, fmt.Errorf("espn scoreboard request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("espn scoreboard returned %s", resp.Status())
	}

	now := time.Now()
	games := make([]models.Game, 0, len(board.Events))
	for _, ev := range board.Events {
		state := mapStatusState(ev.Status.Type.State)
		if state == models.GameStateFinal || state == models.GameStateCancelled {
			continue
		}
		home, away := teamNames(ev)
		if home == "" || away == "" {
			continue
		}
		games = append(games, models.Game{
			GameID:         ev.ID,
			Sport:          sport,
			HomeTeam:       home,
			AwayTeam:       away,
			ScheduledStart: ev.Date,
			State:          state,
			CreatedAt:      now,
			UpdatedAt:      now,
		})
	}
	return games, nil
}

// Fetch retrieves the live snapshot for a single gameID by scanning the
// event's sport scoreboard (ESPN's summary endpoint requires knowing the
// league up front; the discovery loop already does, but a bare gameID
// here is resolved by trying every known league until one answers).
func (p *ESPNProvider) Fetch(ctx context.Context, gameID string) (*models.GameState, error) {
	for sport, seg := range sportLeaguePath {
		gs, err := p.fetchFromLeague(ctx, seg[0], seg[1], gameID)
		if err == nil {
			return gs, nil
		}
		_ = sport
	}
	return nil, fmt.Errorf("espn: game %s not found in any known league", gameID)
}

func (p *ESPNProvider) fetchFromLeague(ctx context.Context, sportSeg, leagueSeg, gameID string) (*models.GameState, error) {
	var board espnScoreboard
	resp, err := p.http.R().SetContext(ctx).SetResult(&board).
		SetQueryParam("event", gameID).
		Get(fmt.Sprintf("/%s/%s/scoreboard", sportSeg, leagueSeg))
	if err != nil {
		return nil, err
	}
	if resp.IsError() {
		return nil, fmt.Errorf("espn summary returned %s", resp.Status())
	}
	for _, ev := range board.Events {
		if ev.ID != gameID {
			continue
		}
		return eventToGameState(ev), nil
	}
	return nil, fmt.Errorf("event %s absent from response", gameID)
}

func eventToGameState(ev espnEvent) *models.GameState {
	homeScore, awayScore := 0, 0
	for _, comp := range ev.Competitions {
		for _, c := range comp.Competitors {
			score, _ := strconv.Atoi(c.Score)
			if c.HomeAway == "home" {
				homeScore = score
			} else if c.HomeAway == "away" {
				awayScore = score
			}
		}
	}
	return &models.GameState{
		GameID:    ev.ID,
		FetchedAt: time.Now(),
		HomeScore: homeScore,
		AwayScore: awayScore,
		Period:    1,
	}
}

func teamNames(ev espnEvent) (home, away string) {
	for _, comp := range ev.Competitions {
		for _, c := range comp.Competitors {
			switch c.HomeAway {
			case "home":
				home = c.Team.DisplayName
			case "away":
				away = c.Team.DisplayName
			}
		}
	}
	return home, away
}

func mapStatusState(espnState string) string {
	switch strings.ToLower(espnState) {
	case "pre":
		return models.GameStatePregame
	case "in":
		return models.GameStateInProgress
	case "post":
		return models.GameStateFinal
	default:
		return models.GameStateCancelled
	}
}

// segmentsFor validates and returns the (sport, league) path segments for
// sport, per §6's path-segment allowlist contract.
func segmentsFor(sport models.Sport) (string, string, error) {
	seg, ok := sportLeaguePath[sport]
	if !ok {
		return "", "", fmt.Errorf("schedule: no ESPN path mapping for sport %q", sport)
	}
	if err := utils.ValidateSportToken(seg[0]); err != nil {
		return "", "", err
	}
	if err := utils.ValidateLeagueToken(seg[1]); err != nil {
		return "", "", err
	}
	return seg[0], seg[1], nil
}
