package venue

import (
	"fmt"
	"strings"

	"sportsarb/internal/bus"
	"sportsarb/internal/config"
)

// factory.go - реестр площадок
//
// Adapted from internal/exchange/factory.go: один конструктор по имени.
// New принимает шину, но ни одному REST-клиенту её не передаёт; "paper"
// создаётся без delegate. Обёртку реального venue для котировок с
// симулированным исполнением строит NewPaperFor.

// SupportedVenues перечисляет имена площадок, принимаемые New.
var SupportedVenues = []string{"kalshi", "polymarket", "paper"}

// New создаёт площадку по имени. decryptedKalshiKey — уже расшифрованный
// PEM приватного ключа Kalshi (или nil для клиента только для чтения).
func New(name string, cfg *config.Config, b *bus.Bus, decryptedKalshiKey []byte) (Venue, error) {
	name = strings.ToLower(name)

	switch name {
	case "kalshi":
		client, err := NewKalshiClient(cfg.Venues.KalshiBaseURL, cfg.Credentials.KalshiAPIKey, decryptedKalshiKey)
		if err != nil {
			return nil, fmt.Errorf("new kalshi client: %w", err)
		}
		return client, nil
	case "polymarket":
		return NewPolymarketClient(cfg.Venues.PolymarketGammaURL, cfg.Venues.PolymarketCLOBURL), nil
	case "paper":
		return NewPaperClient(nil), nil
	default:
		return nil, fmt.Errorf("unsupported venue: %s", name)
	}
}

// IsSupported reports whether name is a recognized venue.
func IsSupported(name string) bool {
	name = strings.ToLower(name)
	for _, v := range SupportedVenues {
		if v == name {
			return true
		}
	}
	return false
}

// NewPaperFor wraps an existing venue as a paper-trading delegate, reusing
// its quotes while simulating fills. Used when PAPER_TRADING is enabled
// for a real venue rather than the standalone "paper" platform.
func NewPaperFor(delegate Venue) *PaperClient {
	return NewPaperClient(delegate)
}

var _ Venue = (*KalshiClient)(nil)
var _ Venue = (*PolymarketClient)(nil)
var _ Venue = (*PaperClient)(nil)
