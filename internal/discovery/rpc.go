package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"sportsarb/internal/bus"
	"sportsarb/pkg/utils"
)

// rpc.go - team-match RPC поверх hot-plane
//
// Запрос на team:match:request, ответ на team:match:response:{request_id}.
// Таймаут по умолчанию 2с — fail-closed (вызывающий трактует как
// non-match). singleflight коалесцирует параллельные запросы с одинаковым
// (game_id, target, candidate), как в Agentchow-HFTKalshiGo/resolver.go's
// ensureFresh.

const defaultMatchTimeout = 2 * time.Second

// Server answers team:match:request on the bus using the local alias
// corpus. One Server instance runs inside the market-discovery process.
type Server struct {
	b       *bus.Bus
	aliases AliasCorpus
	teams   func(gameID string) (home, away string, ok bool)
	logger  *utils.Logger
}

// NewServer wires a Server to bus b. teams resolves a game_id to its
// home/away team names for the contextual-boost check in Resolve.
func NewServer(b *bus.Bus, aliases AliasCorpus, teams func(gameID string) (home, away string, ok bool)) *Server {
	return &Server{b: b, aliases: aliases, teams: teams, logger: utils.L().WithComponent("discovery-rpc")}
}

// requestEnvelope is the wire shape published on team:match:request,
// carrying the game_id needed to look up home/away context.
type requestEnvelope struct {
	MatchRequest
	GameID string `json:"game_id"`
}

// Serve subscribes to team:match:request and publishes a response for
// each one. Intended to run in its own goroutine for the process lifetime.
func (s *Server) Serve(ctx context.Context) {
	sub := s.b.Subscribe("team:match:request")
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			s.handle(env)
		}
	}
}

func (s *Server) handle(env bus.Envelope) {
	var req requestEnvelope
	if err := json.Unmarshal(env.Payload, &req); err != nil {
		s.logger.Warn("discarding malformed team:match:request", utils.Err(err))
		return
	}

	home, away, ok := s.teams(req.GameID)
	var resp MatchResponse
	if !ok {
		resp = MatchResponse{RequestID: req.RequestID, IsMatch: false, Confidence: 0}
	} else {
		resp = Resolve(req.MatchRequest, home, away, s.aliases)
	}

	topic := fmt.Sprintf("team:match:response:%s", req.RequestID)
	if err := s.b.Publish(topic, resp); err != nil {
		s.logger.Warn("failed to publish team:match:response", utils.Err(err))
	}
}

// Client issues team:match:request calls and waits for a correlated
// response, timing out fail-closed.
type Client struct {
	b   *bus.Bus
	sf  singleflight.Group
}

// NewClient wires a Client to bus b.
func NewClient(b *bus.Bus) *Client {
	return &Client{b: b}
}

// Match asks whether candidateText matches targetTeam, for the game
// identified by gameID (used by the server to fetch home/away context).
// Fails closed (false) on timeout or transport error.
func (c *Client) Match(ctx context.Context, gameID, targetTeam, candidateText string) (bool, float64) {
	key := fmt.Sprintf("%s|%s|%s", gameID, targetTeam, candidateText)
	v, _, _ := c.sf.Do(key, func() (interface{}, error) {
		return c.doMatch(ctx, gameID, targetTeam, candidateText)
	})
	resp, ok := v.(MatchResponse)
	if !ok {
		return false, 0
	}
	return resp.IsMatch, resp.Confidence
}

func (c *Client) doMatch(ctx context.Context, gameID, targetTeam, candidateText string) (MatchResponse, error) {
	reqID := fmt.Sprintf("%s-%d", gameID, time.Now().UnixNano())
	respTopic := fmt.Sprintf("team:match:response:%s", reqID)

	sub := c.b.Subscribe(respTopic)
	defer sub.Close()

	if err := c.b.Publish("team:match:request", requestEnvelope{
		MatchRequest: MatchRequest{RequestID: reqID, TargetTeam: targetTeam, CandidateTeam: candidateText},
		GameID:       gameID,
	}); err != nil {
		return MatchResponse{}, err
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, defaultMatchTimeout)
	defer cancel()

	select {
	case env := <-sub.C():
		var resp MatchResponse
		if err := json.Unmarshal(env.Payload, &resp); err != nil {
			return MatchResponse{}, err
		}
		return resp, nil
	case <-timeoutCtx.Done():
		return MatchResponse{IsMatch: false, Confidence: 0}, nil
	}
}
