package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
	"sportsarb/internal/discovery"
	"sportsarb/internal/execution"
	"sportsarb/internal/models"
	"sportsarb/internal/orchestrator"
	"sportsarb/internal/schedule"
	"sportsarb/internal/shard"
	"sportsarb/internal/signalproc"
	"sportsarb/internal/store"
	"sportsarb/internal/streamstore"
	"sportsarb/internal/tracker"
	"sportsarb/internal/venue"
	"sportsarb/pkg/crypto"
	"sportsarb/pkg/utils"
)

// main.go - точка входа core-процесса (§4.1-§4.7)
//
// Запускает: оркестратор и один или несколько шардов, процессор
// сигналов, движок исполнения, трекер позиций, RPC-сервер сопоставления
// команд и персистентность потоков в streamstore. REST API, дашборд и
// человеко-читаемые уведомления — вне ядра (см. spec.md Non-goals);
// WebSocket-транскодеры котировок площадок живут в cmd/feed, поскольку
// ядро потребляет только канонический формат цены на шине.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := utils.InitGlobalLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}).WithComponent("server")
	defer logger.Sync()

	db, err := sql.Open("postgres", cfg.Store.DatabaseURL)
	if err != nil {
		logger.Fatal("open database", utils.Err(err))
	}
	defer db.Close()
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		pingCancel()
		logger.Fatal("ping database", utils.Err(err))
	}
	pingCancel()

	repo := store.New(db)
	streams := streamstore.NewStore(db)

	b := bus.New("server")

	venues := buildVenues(cfg, b, logger)
	defer func() {
		for _, v := range venues {
			_ = v.Close()
		}
	}()

	provider := schedule.NewESPNProvider(cfg.Runtime.ScheduleBaseURL)

	sports := make([]models.Sport, 0, len(cfg.Runtime.Sports))
	for _, token := range cfg.Runtime.Sports {
		sp := models.Sport(token)
		if sp.IsValid() {
			sports = append(sports, sp)
		} else {
			logger.Warn("ignoring unknown sport in ENABLED_SPORTS", utils.String("sport", token))
		}
	}

	orch, err := orchestrator.New(b, provider, sports, cfg.Polling, cfg.Heartbeat)
	if err != nil {
		logger.Fatal("construct orchestrator", utils.Err(err))
	}

	// games backs both the market-discovery RPC server's game_id ->
	// home/away lookup and the market-refresh loop's game_id -> sport
	// lookup; populated as the orchestrator discovers each game, since the
	// orchestrator itself never imports the discovery package.
	var gamesMu sync.Mutex
	games := make(map[string]models.Game)
	marketCache := discovery.NewMarketCache()
	orch.OnDiscovered(func(g models.Game) {
		gamesMu.Lock()
		games[g.GameID] = g
		gamesMu.Unlock()
		refreshMarkets(context.Background(), g, venues, marketCache, logger)
	})

	discoveryServer := discovery.NewServer(b, discovery.AliasCorpus{}, func(gameID string) (string, string, bool) {
		gamesMu.Lock()
		defer gamesMu.Unlock()
		g, ok := games[gameID]
		if !ok {
			return "", "", false
		}
		return g.HomeTeam, g.AwayTeam, true
	})

	engine := execution.NewEngine(venues, cfg)
	proc := signalproc.New(repo, b, cfg.Sizing, cfg.Risk, cfg.Liquidity)
	proc.SetMarketResolver(discovery.NewCacheResolver(marketCache))
	track := tracker.New(repo, b, engine, cfg.Freshness, cfg.Polling)

	shardCount := cfg.Runtime.ShardCount
	if shardCount < 1 {
		shardCount = 1
	}
	shards := make([]*shard.Shard, 0, shardCount)
	for i := 0; i < shardCount; i++ {
		id := fmt.Sprintf("shard-%d", i)
		sh := shard.New(id, b, func(models.Sport) shard.StateProvider { return provider }, cfg.Freshness, cfg.Polling)
		shards = append(shards, sh)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	runRestartable := func(name string, fn func(ctx context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
		orch.RegisterRestart(name, func(restartCtx context.Context) error {
			wg.Add(1)
			go func() {
				defer wg.Done()
				fn(restartCtx)
			}()
			return nil
		})
	}

	runRestartable("signalproc", proc.Run)
	runRestartable("execution", func(ctx context.Context) { engine.Run(ctx, b) })
	runRestartable("tracker", track.Run)
	runRestartable("discovery-rpc", discoveryServer.Serve)
	runRestartable("market-refresh", func(ctx context.Context) {
		runMarketRefreshLoop(ctx, &gamesMu, games, venues, marketCache, logger)
	})

	heartbeatInterval := time.Duration(cfg.Heartbeat.IntervalSecs) * time.Second
	for _, sh := range shards {
		sh := sh
		wg.Add(1)
		go func() {
			defer wg.Done()
			sh.Run(ctx, heartbeatInterval)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		runStreamObserver(ctx, b, streams, logger)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		orch.Run(ctx)
	}()

	logger.Info("server started",
		utils.Int("shard_count", len(shards)),
		utils.Int("sport_count", len(sports)),
		utils.Int("venue_count", len(venues)))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(30 * time.Second):
		logger.Warn("shutdown timed out waiting for subsystems")
	}

	logger.Info("server exited")
}

// buildVenues constructs a Venue client per ENABLED_VENUES entry,
// decrypting the Kalshi private key (at rest, encrypted with
// ENCRYPTION_KEY per pkg/crypto) when present, and wrapping every venue
// in the paper simulator when PAPER_TRADING is set.
func buildVenues(cfg *config.Config, b *bus.Bus, logger *utils.Logger) map[models.Platform]venue.Venue {
	var kalshiKey []byte
	if cfg.Credentials.KalshiPrivateKey != "" {
		pem, err := crypto.DecryptWithKeyString(cfg.Credentials.KalshiPrivateKey, cfg.Credentials.EncryptionKey)
		if err != nil {
			logger.Fatal("decrypt kalshi private key", utils.Err(err))
		}
		kalshiKey = []byte(pem)
	}

	out := make(map[models.Platform]venue.Venue)
	for _, name := range cfg.Runtime.Venues {
		if !venue.IsSupported(name) {
			logger.Warn("ignoring unsupported venue in ENABLED_VENUES", utils.String("venue", name))
			continue
		}
		v, err := venue.New(name, cfg, b, kalshiKey)
		if err != nil {
			logger.Fatal("construct venue client", utils.String("venue", name), utils.Err(err))
		}
		if cfg.Mode.PaperTrading && name != "paper" {
			v = venue.NewPaperFor(v)
		}
		out[v.Name()] = v
	}
	return out
}

// refreshMarkets re-resolves every configured venue's market ids for g
// and writes the result into cache, even when a venue returns no
// candidates (an empty entry still records fetchedAt, which is what
// drives MarketCache's aggressive-refresh window for a not-yet-listed
// game rather than refreshing it on every tick).
func refreshMarkets(ctx context.Context, g models.Game, venues map[models.Platform]venue.Venue, cache *discovery.MarketCache, logger *utils.Logger) {
	markets := make(map[models.Platform][]discovery.MarketRef)
	for platform, v := range venues {
		ids, err := v.DiscoverMarkets(ctx, g.Sport, g.HomeTeam, g.AwayTeam)
		if err != nil {
			logger.Warn("market discovery failed",
				utils.GameID(g.GameID), utils.String("platform", string(platform)), utils.Err(err))
			continue
		}
		if len(ids) == 0 {
			continue
		}
		refs := make([]discovery.MarketRef, 0, len(ids))
		for _, id := range ids {
			refs = append(refs, discovery.MarketRef{Platform: platform, MarketID: id})
		}
		markets[platform] = refs
	}
	cache.Set(g.GameID, markets)
}

// runMarketRefreshLoop periodically re-resolves markets for every game
// the orchestrator has discovered, honoring MarketCache's own
// refresh-needed signal (stale past TTL, or still empty past the
// aggressive-refresh window) rather than refreshing everything blindly.
func runMarketRefreshLoop(ctx context.Context, gamesMu *sync.Mutex, games map[string]models.Game, venues map[models.Platform]venue.Venue, cache *discovery.MarketCache, logger *utils.Logger) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			gamesMu.Lock()
			snapshot := make([]models.Game, 0, len(games))
			for _, g := range games {
				snapshot = append(snapshot, g)
			}
			gamesMu.Unlock()

			for _, g := range snapshot {
				if _, needsRefresh := cache.Get(g.GameID); needsRefresh {
					refreshMarkets(ctx, g, venues, cache, logger)
				}
			}
		}
	}
}

// streamCategory maps a bus topic's leading segment to the streamstore
// table it persists to; topics outside this set (health:*, shard:*,
// team:match:*, notification:*, feedback:*) are control-plane and are
// not persisted.
func streamCategory(topic string) (string, bool) {
	switch {
	case hasPrefix(topic, "prices."):
		return "prices", true
	case hasPrefix(topic, "signals."):
		return "signals", true
	case hasPrefix(topic, "execution."):
		return "executions", true
	case hasPrefix(topic, "trades."):
		return "trades", true
	case hasPrefix(topic, "games."):
		return "games", true
	default:
		return "", false
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// runStreamObserver subscribes to every topic and persists the ones the
// stream store recognizes, giving the pipeline's hot-plane messages a
// durable, replayable record (§4.8).
func runStreamObserver(ctx context.Context, b *bus.Bus, streams *streamstore.Store, logger *utils.Logger) {
	sub := b.Subscribe("*")
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-sub.C():
			if !ok {
				return
			}
			category, ok := streamCategory(env.Topic)
			if !ok {
				continue
			}
			if err := streams.Append(category, env); err != nil {
				logger.Warn("stream append failed",
					utils.String("category", category), utils.String("topic", env.Topic), utils.Err(err))
			}
		}
	}
}
