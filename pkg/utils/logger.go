package utils

import (
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogConfig управляет созданием Logger. Нулевое значение даёт разумные
// умолчания (info, json, stderr).
type LogConfig struct {
	Level       string // debug|info|warn|error|fatal
	Format      string // json|text
	Output      string // путь к файлу; пусто = stderr
	Development bool
}

// Logger оборачивает zap.Logger парой с SugaredLogger для Printf-style вызовов.
type Logger struct {
	*zap.Logger
	sugar *zap.SugaredLogger
}

func parseLevel(level string) zapcore.Level {
	switch level {
	case "debug", "DEBUG":
		return zapcore.DebugLevel
	case "info", "INFO":
		return zapcore.InfoLevel
	case "warn", "WARN", "warning", "WARNING":
		return zapcore.WarnLevel
	case "error", "ERROR":
		return zapcore.ErrorLevel
	case "fatal", "FATAL":
		return zapcore.FatalLevel
	default:
		return zapcore.InfoLevel
	}
}

// InitLogger строит Logger из LogConfig. Ошибка открытия Output приводит
// к fallback на stderr, не к панике — логирование не должно быть причиной
// отказа процесса.
func InitLogger(cfg LogConfig) *Logger {
	var encoder zapcore.Encoder
	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if cfg.Format == "text" {
		encCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.LowercaseLevelEncoder
		encoder = zapcore.NewJSONEncoder(encCfg)
	}

	var sink zapcore.WriteSyncer
	if cfg.Output != "" {
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			sink = zapcore.AddSync(os.Stderr)
		} else {
			sink = zapcore.AddSync(f)
		}
	} else {
		sink = zapcore.AddSync(os.Stderr)
	}

	core := zapcore.NewCore(encoder, sink, parseLevel(cfg.Level))

	opts := []zap.Option{zap.AddCaller()}
	if cfg.Development {
		opts = append(opts, zap.Development())
	}

	zl := zap.New(core, opts...)
	return &Logger{Logger: zl, sugar: zl.Sugar()}
}

// With возвращает дочерний Logger с дополнительными структурными полями.
func (l *Logger) With(fields ...zap.Field) *Logger {
	return &Logger{Logger: l.Logger.With(fields...), sugar: l.Logger.With(fields...).Sugar()}
}

func (l *Logger) WithComponent(name string) *Logger { return l.With(Component(name)) }
func (l *Logger) WithExchange(venue string) *Logger { return l.With(Exchange(venue)) }
func (l *Logger) WithSymbol(market string) *Logger  { return l.With(Symbol(market)) }
func (l *Logger) WithPairID(id int64) *Logger       { return l.With(PairID(id)) }

// Sugar возвращает SugaredLogger для Printf-style вызовов.
func (l *Logger) Sugar() *zap.SugaredLogger { return l.sugar }

// ============================================================
// Глобальный логгер процесса
// ============================================================

var (
	globalMu     sync.RWMutex
	globalLogger *Logger
)

// GetGlobalLogger лениво создаёт логгер по умолчанию при первом обращении.
func GetGlobalLogger() *Logger {
	globalMu.RLock()
	if globalLogger != nil {
		defer globalMu.RUnlock()
		return globalLogger
	}
	globalMu.RUnlock()

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		globalLogger = InitLogger(LogConfig{})
	}
	return globalLogger
}

// InitGlobalLogger создаёт и устанавливает глобальный логгер из конфигурации.
func InitGlobalLogger(cfg LogConfig) *Logger {
	l := InitLogger(cfg)
	SetGlobalLogger(l)
	return l
}

// SetGlobalLogger заменяет глобальный логгер (используется в тестах и main).
func SetGlobalLogger(l *Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = l
}

// L — короткий алиас для GetGlobalLogger, удобен в call-сайтах.
func L() *Logger { return GetGlobalLogger() }

func Debug(msg string, fields ...zap.Field) { L().Debug(msg, fields...) }
func Info(msg string, fields ...zap.Field)  { L().Info(msg, fields...) }
func Warn(msg string, fields ...zap.Field)  { L().Warn(msg, fields...) }
func Error(msg string, fields ...zap.Field) { L().Error(msg, fields...) }

func Debugf(format string, args ...interface{}) { L().sugar.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { L().sugar.Infof(format, args...) }
func Warnf(format string, args ...interface{})  { L().sugar.Warnf(format, args...) }
func Errorf(format string, args ...interface{}) { L().sugar.Errorf(format, args...) }

// ============================================================
// Доменные конструкторы полей
// ============================================================

func Exchange(venue string) zap.Field { return zap.String("exchange", venue) }
func Symbol(market string) zap.Field  { return zap.String("symbol", market) }
func PairID(id int64) zap.Field       { return zap.Int64("pair_id", id) }
func OrderID(id string) zap.Field     { return zap.String("order_id", id) }
func Price(p float64) zap.Field       { return zap.Float64("price", p) }
func Volume(v float64) zap.Field      { return zap.Float64("volume", v) }
func Spread(s float64) zap.Field      { return zap.Float64("spread", s) }
func PNL(pnl float64) zap.Field       { return zap.Float64("pnl", pnl) }
func Side(side string) zap.Field      { return zap.String("side", side) }
func State(state string) zap.Field    { return zap.String("state", state) }
func Latency(ms float64) zap.Field    { return zap.Float64("latency_ms", ms) }
func RequestID(id string) zap.Field   { return zap.String("request_id", id) }
func UserID(id int64) zap.Field       { return zap.Int64("user_id", id) }
func Component(name string) zap.Field { return zap.String("component", name) }

// GameID помечает лог-запись идентификатором игры — основной ключ
// корреляции во всём пайплайне (шард, процессор сигналов, трекер).
func GameID(id string) zap.Field { return zap.String("game_id", id) }

// ShardID помечает лог-запись идентификатором шарда.
func ShardID(id string) zap.Field { return zap.String("shard_id", id) }

// Переэкспортированные конструкторы стандартных полей zap — вызывающий код
// не импортирует go.uber.org/zap напрямую.
func String(key, value string) zap.Field          { return zap.String(key, value) }
func Int(key string, value int) zap.Field         { return zap.Int(key, value) }
func Int64(key string, value int64) zap.Field     { return zap.Int64(key, value) }
func Float64(key string, value float64) zap.Field { return zap.Float64(key, value) }
func Bool(key string, value bool) zap.Field       { return zap.Bool(key, value) }
func Err(err error) zap.Field                     { return zap.Error(err) }
func Any(key string, value interface{}) zap.Field { return zap.Any(key, value) }

func fieldsToInterface(fields []zap.Field) []interface{} {
	enc := zapcore.NewMapObjectEncoder()
	out := make([]interface{}, 0, len(fields)*2)
	for _, f := range fields {
		f.AddTo(enc)
		if v, ok := enc.Fields[f.Key]; ok {
			out = append(out, f.Key, v)
		}
	}
	return out
}
