package shard

// state_machine.go - состояние монитора одной игры (§4.4)
//
// Adapted from internal/bot/state_machine.go's ValidTransitions table:
// same map-of-allowed-next-states shape, relabeled from the pair-trading
// states (Paused/Ready/Entering/Holding/Exiting/Error) onto the monitor's
// own states (Idle/Monitoring/Emitting/Debounced/Stopped).

const (
	StateIdle       = "idle"
	StateMonitoring = "monitoring"
	StateEmitting   = "emitting"
	StateDebounced  = "debounced"
	StateStopped    = "stopped"
)

// ValidTransitions определяет допустимые переходы между состояниями монитора.
var ValidTransitions = map[string][]string{
	StateIdle:       {StateMonitoring, StateStopped},
	StateMonitoring: {StateEmitting, StateDebounced, StateStopped},
	StateEmitting:   {StateMonitoring, StateStopped},
	StateDebounced:  {StateMonitoring, StateStopped},
	StateStopped:    {}, // терминальное: удаление оркестратором или Final игры
}

// CanTransition проверяет допустимость перехода.
func CanTransition(from, to string) bool {
	allowed, ok := ValidTransitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal возвращает true, если состояние финально для монитора.
func IsTerminal(s string) bool {
	return s == StateStopped
}

// StateInfo возвращает описание состояния для наблюдаемости.
func StateInfo(s string) string {
	switch s {
	case StateIdle:
		return "монитор создан, опрос ещё не начат"
	case StateMonitoring:
		return "опрос активен, сигналы не испускаются в этом тике"
	case StateEmitting:
		return "сигнал только что опубликован"
	case StateDebounced:
		return "edge обнаружен, но подавлен дебаунсом"
	case StateStopped:
		return "монитор остановлен (Final игры либо удалён оркестратором)"
	default:
		return "неизвестное состояние"
	}
}
