package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"sportsarb/pkg/utils"
)

// Config содержит всю конфигурацию процесса. Каждый cmd/* грузит один
// Config при старте и передаёт его явно вниз по стеку — никаких
// ambient-синглтонов.
type Config struct {
	Sizing      SizingConfig
	Risk        RiskConfig
	Liquidity   LiquidityConfig
	Freshness   FreshnessConfig
	Polling     PollingConfig
	Heartbeat   HeartbeatConfig
	Mode        ModeConfig
	Credentials CredentialsConfig
	Venues      VenuesConfig
	Store       StoreConfig
	Logging     LoggingConfig
	Runtime     RuntimeConfig
}

// RuntimeConfig выбирает, какие спорты/площадки поднимает cmd/server, и
// сколько шардов запускать в этом процессе.
type RuntimeConfig struct {
	Sports          []string
	Venues          []string
	ShardCount      int
	ScheduleBaseURL string
}

// SizingConfig — пороги edge и позиционирования.
type SizingConfig struct {
	MinEdgePct     float64
	KellyFraction  float64
	MaxPositionPct float64
	MaxBuyProb     float64
	MinSellProb    float64
	AllowHedging   bool
}

// RiskConfig — лимиты риска и кулдауны.
type RiskConfig struct {
	MaxDailyLoss        int64 // центы
	MaxGameExposure     int64 // центы
	MaxSportExposure    int64 // центы
	WinCooldownSeconds  int
	LossCooldownSeconds int
}

// LiquidityConfig — пороги ликвидности по умолчанию и по платформе.
type LiquidityConfig struct {
	MinThreshold           float64
	MinThresholdKalshi     *float64
	MinThresholdPolymarket *float64
	MinThresholdPaper      *float64
	MaxPositionPct         float64
}

// FreshnessConfig — TTL для цен и состояний игры.
type FreshnessConfig struct {
	PriceStalenessTTL     time.Duration
	GameStateStalenessTTL time.Duration
}

// PollingConfig — интервалы опроса, дебаунса и выхода.
type PollingConfig struct {
	PollInterval          time.Duration
	SignalDebounceSecs    int
	ExitCheckInterval     time.Duration
	MinHoldSeconds        int
	TakeProfitPct         float64
	DefaultStopLossPct    float64
	StopLossPctBySport    map[string]float64 // sport token (lowercase) -> override, §4.7
	DiscoveryIntervalSecs int
}

// sportStopLossTokens enumerates the STOP_LOSS_PCT_{SPORT} env vars read
// at startup; unset ones fall back to DefaultStopLossPct.
var sportStopLossTokens = []string{"nfl", "nba", "nhl", "mlb", "ncaaf", "ncaab", "mls", "soccer", "tennis", "mma"}

func loadStopLossOverrides() map[string]float64 {
	overrides := make(map[string]float64)
	for _, sport := range sportStopLossTokens {
		key := "STOP_LOSS_PCT_" + strings.ToUpper(sport)
		if v := getEnvAsFloatPtr(key); v != nil {
			overrides[sport] = *v
		}
	}
	return overrides
}

// HeartbeatConfig — параметры heartbeat и супервайзера.
type HeartbeatConfig struct {
	IntervalSecs        int
	TTLSecs             int
	MissThreshold       int
	SupervisorEnabled   bool
	MaxRestartAttempts  int
	RestartBackoffSecs  int
	RestartCooldownSecs int
}

// ModeConfig — режимы работы процесса.
type ModeConfig struct {
	PaperTrading bool
}

// CredentialsConfig — учётные данные площадок. Приватные ключи хранятся
// зашифрованными в окружении и расшифровываются через pkg/crypto при
// первом использовании, а не в момент загрузки конфигурации.
type CredentialsConfig struct {
	KalshiAPIKey         string
	KalshiPrivateKey     string
	PolymarketPrivateKey string
	EncryptionKey        string
}

// VenuesConfig — базовые URL площадок. Kalshi различает elections/sports/
// demo поддомены через один и тот же env var; WS URL задаётся отдельно.
type VenuesConfig struct {
	KalshiBaseURL        string
	KalshiWSURL          string
	PolymarketGammaURL   string
	PolymarketCLOBURL    string
	PolymarketWSURL      string
}

// StoreConfig — подключение к хранилищу.
type StoreConfig struct {
	DatabaseURL      string
	PostgresPassword string
}

// LoggingConfig - настройки логирования
type LoggingConfig struct {
	Level  string
	Format string
}

// Load загружает конфигурацию из переменных окружения. Сперва пытается
// подхватить локальный .env (ошибка отсутствия файла игнорируется — это
// нормально вне dev-окружения), затем читает os.Getenv.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Sizing: SizingConfig{
			MinEdgePct:     getEnvAsFloat("MIN_EDGE_PCT", 3.5),
			KellyFraction:  getEnvAsFloat("KELLY_FRACTION", 0.25),
			MaxPositionPct: getEnvAsFloat("MAX_POSITION_PCT", 5.0),
			MaxBuyProb:     getEnvAsFloat("MAX_BUY_PROB", 0.95),
			MinSellProb:    getEnvAsFloat("MIN_SELL_PROB", 0.05),
			AllowHedging:   getEnvAsBool("ALLOW_HEDGING", false),
		},
		Risk: RiskConfig{
			MaxDailyLoss:        getEnvAsInt64("MAX_DAILY_LOSS", 50000),
			MaxGameExposure:     getEnvAsInt64("MAX_GAME_EXPOSURE", 20000),
			MaxSportExposure:    getEnvAsInt64("MAX_SPORT_EXPOSURE", 100000),
			WinCooldownSeconds:  getEnvAsInt("WIN_COOLDOWN_SECONDS", 180),
			LossCooldownSeconds: getEnvAsInt("LOSS_COOLDOWN_SECONDS", 300),
		},
		Liquidity: LiquidityConfig{
			MinThreshold:           getEnvAsFloat("LIQUIDITY_MIN_THRESHOLD", 100),
			MinThresholdKalshi:     getEnvAsFloatPtr("LIQUIDITY_MIN_THRESHOLD_KALSHI"),
			MinThresholdPolymarket: getEnvAsFloatPtr("LIQUIDITY_MIN_THRESHOLD_POLYMARKET"),
			MinThresholdPaper:      getEnvAsFloatPtr("LIQUIDITY_MIN_THRESHOLD_PAPER"),
			MaxPositionPct:         getEnvAsFloat("LIQUIDITY_MAX_POSITION_PCT", 80.0),
		},
		Freshness: FreshnessConfig{
			PriceStalenessTTL:     getEnvAsDuration("PRICE_STALENESS_TTL", 30*time.Second),
			GameStateStalenessTTL: getEnvAsDuration("GAME_STATE_STALENESS_TTL", 10*time.Second),
		},
		Polling: PollingConfig{
			PollInterval:          getEnvAsDuration("POLL_INTERVAL", 1*time.Second),
			SignalDebounceSecs:    getEnvAsInt("SIGNAL_DEBOUNCE_SECS", 5),
			ExitCheckInterval:     getEnvAsDuration("EXIT_CHECK_INTERVAL_SECS", 1*time.Second),
			MinHoldSeconds:        getEnvAsInt("MIN_HOLD_SECONDS", 10),
			TakeProfitPct:         getEnvAsFloat("TAKE_PROFIT_PCT", 3.0),
			DefaultStopLossPct:    getEnvAsFloat("DEFAULT_STOP_LOSS_PCT", 5.0),
			StopLossPctBySport:    loadStopLossOverrides(),
			DiscoveryIntervalSecs: getEnvAsInt("DISCOVERY_INTERVAL_SECS", 60),
		},
		Heartbeat: HeartbeatConfig{
			IntervalSecs:        getEnvAsInt("HEARTBEAT_INTERVAL_SECS", 10),
			TTLSecs:             getEnvAsInt("HEARTBEAT_TTL_SECS", 35),
			MissThreshold:       getEnvAsInt("HEARTBEAT_MISS_THRESHOLD", 3),
			SupervisorEnabled:   getEnvAsBool("SUPERVISOR_ENABLED", true),
			MaxRestartAttempts:  getEnvAsInt("MAX_RESTART_ATTEMPTS", 3),
			RestartBackoffSecs:  getEnvAsInt("RESTART_BACKOFF_SECS", 5),
			RestartCooldownSecs: getEnvAsInt("RESTART_COOLDOWN_SECS", 300),
		},
		Mode: ModeConfig{
			PaperTrading: getEnvAsBool("PAPER_TRADING", true),
		},
		Credentials: CredentialsConfig{
			KalshiAPIKey:         getEnv("KALSHI_API_KEY", ""),
			KalshiPrivateKey:     getEnv("KALSHI_PRIVATE_KEY", ""),
			PolymarketPrivateKey: getEnv("POLYMARKET_PRIVATE_KEY", ""),
			EncryptionKey:        getEnv("ENCRYPTION_KEY", ""),
		},
		Venues: VenuesConfig{
			KalshiBaseURL:      getEnv("KALSHI_BASE_URL", "https://trading-api.kalshi.com/trade-api/v2"),
			KalshiWSURL:        getEnv("KALSHI_WS_URL", "wss://trading-api.kalshi.com/trade-api/ws/v2"),
			PolymarketGammaURL: getEnv("POLYMARKET_GAMMA_URL", "https://gamma-api.polymarket.com"),
			PolymarketCLOBURL:  getEnv("POLYMARKET_CLOB_URL", "https://clob.polymarket.com"),
			PolymarketWSURL:    getEnv("POLYMARKET_WS_URL", "wss://ws-subscriptions-clob.polymarket.com/ws"),
		},
		Store: StoreConfig{
			DatabaseURL:      getEnv("DATABASE_URL", ""),
			PostgresPassword: getEnv("POSTGRES_PASSWORD", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Runtime: RuntimeConfig{
			Sports:          getEnvAsSlice("ENABLED_SPORTS", []string{"nfl", "ncaaf", "nba", "ncaab", "nhl", "mlb", "mls"}),
			Venues:          getEnvAsSlice("ENABLED_VENUES", []string{"kalshi", "polymarket"}),
			ShardCount:      getEnvAsInt("SHARD_COUNT", 1),
			ScheduleBaseURL: getEnv("SCHEDULE_BASE_URL", "https://site.api.espn.com/apis/site/v2/sports"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate fails fast on required-but-missing or malformed values, per the
// teacher's own critical-params-checked-at-Load pattern.
func (c *Config) validate() error {
	if c.Store.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required; no insecure default")
	}
	if c.Credentials.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required for encrypting venue credentials")
	}
	if err := utils.ValidateEncryptionKey([]byte(c.Credentials.EncryptionKey)); err != nil {
		return err
	}
	if err := utils.ValidateEdgeThreshold(c.Sizing.MinEdgePct); err != nil {
		return fmt.Errorf("MIN_EDGE_PCT: %w", err)
	}
	if err := utils.ValidatePositiveSeconds("POLL_INTERVAL", int(c.Polling.PollInterval.Seconds())); err != nil {
		return err
	}
	if err := utils.ValidatePositiveSeconds("DISCOVERY_INTERVAL_SECS", c.Polling.DiscoveryIntervalSecs); err != nil {
		return err
	}
	return nil
}

// Вспомогательные функции для чтения переменных окружения

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloatPtr(key string) *float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return nil
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return nil
	}
	return &value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
