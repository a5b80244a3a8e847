// Command feed runs the venue WebSocket transcoders: it discovers live
// games the same way the core does, resolves each to Kalshi/Polymarket
// market ids, and republishes top-of-book onto prices.kalshi.{ticker} /
// prices.polymarket.{asset_id} in the canonical format the core's shards
// consume. spec.md treats this transcoding step as an external
// collaborator to the core ("only the canonical message format is
// specified") — it is still real code, just a separate process.
package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
	"sportsarb/internal/models"
	"sportsarb/internal/schedule"
	"sportsarb/internal/venue"
	"sportsarb/pkg/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).WithComponent("feed")
	defer logger.Sync()

	b := bus.New("feed")
	provider := schedule.NewESPNProvider(cfg.Runtime.ScheduleBaseURL)

	var kalshiREST *venue.KalshiClient
	var kalshiStream *venue.KalshiStream
	var polyREST *venue.PolymarketClient
	var polyStream *venue.PolymarketStream

	for _, name := range cfg.Runtime.Venues {
		switch strings.ToLower(name) {
		case "kalshi":
			client, err := venue.NewKalshiClient(cfg.Venues.KalshiBaseURL, "", nil)
			if err != nil {
				logger.Fatal("construct kalshi discovery client", utils.Err(err))
			}
			kalshiREST = client
			kalshiStream = venue.NewKalshiStream(cfg.Venues.KalshiWSURL, nil, b)
			if err := kalshiStream.Connect(); err != nil {
				logger.Warn("kalshi stream initial connect failed, will retry on reconnect loop", utils.Err(err))
			}
		case "polymarket":
			polyREST = venue.NewPolymarketClient(cfg.Venues.PolymarketGammaURL, cfg.Venues.PolymarketCLOBURL)
			polyStream = venue.NewPolymarketStream(cfg.Venues.PolymarketWSURL, b)
			if err := polyStream.Connect(); err != nil {
				logger.Warn("polymarket stream initial connect failed, will retry on reconnect loop", utils.Err(err))
			}
		}
	}
	defer func() {
		if kalshiStream != nil {
			kalshiStream.Close()
		}
		if polyStream != nil {
			polyStream.Close()
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	subscribed := make(map[string]bool)
	interval := time.Duration(cfg.Polling.DiscoveryIntervalSecs) * time.Second
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	discover := func() {
		for _, token := range cfg.Runtime.Sports {
			sport := models.Sport(token)
			if !sport.IsValid() {
				continue
			}
			games, err := provider.ListLive(ctx, sport)
			if err != nil {
				logger.Warn("schedule discovery failed", utils.String("sport", token), utils.Err(err))
				continue
			}
			for _, g := range games {
				subscribeGame(ctx, g, kalshiREST, kalshiStream, polyREST, polyStream, subscribed, logger)
			}
		}
	}

	discover()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case <-quit:
			logger.Info("shutting down feed")
			return
		case <-ticker.C:
			discover()
		}
	}
}

// subscribeGame resolves g's market ids on every configured venue and
// subscribes each venue's stream, skipping markets already subscribed
// (keyed by market id, across calls — a market only needs one
// orderbook_delta subscription for its whole life).
func subscribeGame(
	ctx context.Context,
	g models.Game,
	kalshiREST *venue.KalshiClient,
	kalshiStream *venue.KalshiStream,
	polyREST *venue.PolymarketClient,
	polyStream *venue.PolymarketStream,
	subscribed map[string]bool,
	logger *utils.Logger,
) {
	if kalshiREST != nil && kalshiStream != nil {
		tickers, err := kalshiREST.DiscoverMarkets(ctx, g.Sport, g.HomeTeam, g.AwayTeam)
		if err != nil {
			logger.Warn("kalshi market discovery failed", utils.GameID(g.GameID), utils.Err(err))
		}
		for _, ticker := range tickers {
			key := "kalshi:" + ticker
			if subscribed[key] {
				continue
			}
			if err := kalshiStream.Subscribe(ticker); err != nil {
				logger.Warn("kalshi subscribe failed", utils.String("ticker", ticker), utils.Err(err))
				continue
			}
			subscribed[key] = true
		}
	}

	if polyREST != nil && polyStream != nil {
		assetIDs, err := polyREST.DiscoverMarkets(ctx, g.Sport, g.HomeTeam, g.AwayTeam)
		if err != nil {
			logger.Warn("polymarket market discovery failed", utils.GameID(g.GameID), utils.Err(err))
		}
		for _, assetID := range assetIDs {
			key := "polymarket:" + assetID
			if subscribed[key] {
				continue
			}
			if err := polyStream.Subscribe(assetID); err != nil {
				logger.Warn("polymarket subscribe failed", utils.String("asset_id", assetID), utils.Err(err))
				continue
			}
			subscribed[key] = true
		}
	}
}
