package utils

import (
	"fmt"
	"regexp"
	"strings"
)

// validator.go - валидация входных данных на границах системы
//
// Sport/league токены, конфигурация окружения и ключи шифрования
// проверяются здесь до того, как попасть во внутренние структуры.

// allowedSportTokens — allowlist спортов, допустимых в path-сегментах
// провайдера расписания и в конфигурации дискавери.
var allowedSportTokens = map[string]bool{
	"football":   true,
	"basketball": true,
	"hockey":     true,
	"baseball":   true,
	"soccer":     true,
	"tennis":     true,
	"mma":        true,
}

// allowedLeagueTokens — allowlist лиг, используемых тем же провайдером.
var allowedLeagueTokens = map[string]bool{
	"nfl":              true,
	"nba":              true,
	"nhl":              true,
	"mlb":              true,
	"mls":              true,
	"college-football": true,
	"ncaab":            true,
}

var pathSegmentPattern = regexp.MustCompile(`^[A-Za-z0-9.-]+$`)

// ValidationErrors collects multiple field errors, matching the teacher's
// multi-field form-validation style.
type ValidationErrors struct {
	errs []string
}

func (v *ValidationErrors) Add(field, msg string) {
	v.errs = append(v.errs, fmt.Sprintf("%s: %s", field, msg))
}

func (v *ValidationErrors) HasErrors() bool { return len(v.errs) > 0 }

func (v *ValidationErrors) Error() string {
	return strings.Join(v.errs, "; ")
}

// ValidatePathSegment rejects any path segment containing characters
// outside [A-Za-z0-9.-], per the schedule provider's input contract.
func ValidatePathSegment(segment string) error {
	if segment == "" {
		return fmt.Errorf("path segment must not be empty")
	}
	if !pathSegmentPattern.MatchString(segment) {
		return fmt.Errorf("path segment %q contains disallowed characters", segment)
	}
	return nil
}

// ValidateSportToken validates a sport identifier against the fixed
// allowlist used by the discovery loop and schedule provider.
func ValidateSportToken(token string) error {
	if err := ValidatePathSegment(token); err != nil {
		return err
	}
	normalized := strings.ToLower(token)
	if !allowedSportTokens[normalized] {
		return fmt.Errorf("sport token %q is not in the allowlist", token)
	}
	return nil
}

// ValidateLeagueToken validates a league identifier against the fixed
// allowlist used by the discovery loop and schedule provider.
func ValidateLeagueToken(token string) error {
	if err := ValidatePathSegment(token); err != nil {
		return err
	}
	normalized := strings.ToLower(token)
	if !allowedLeagueTokens[normalized] {
		return fmt.Errorf("league token %q is not in the allowlist", token)
	}
	return nil
}

// ValidateEncryptionKey checks that a key intended for pkg/crypto's
// AES-256-GCM routines is exactly 32 bytes.
func ValidateEncryptionKey(key []byte) error {
	if len(key) != 32 {
		return fmt.Errorf("encryption key must be 32 bytes, got %d", len(key))
	}
	return nil
}

// ValidatePositiveSeconds guards env-configured intervals (poll, discovery,
// heartbeat) against zero or negative values that would spin a loop.
func ValidatePositiveSeconds(name string, seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("%s must be a positive number of seconds, got %d", name, seconds)
	}
	return nil
}

// ValidateEdgeThreshold checks that a minimum-edge percentage is within a
// sane range; thresholds outside this band almost certainly indicate a
// misconfigured rule or env var.
func ValidateEdgeThreshold(pct float64) error {
	if pct < 0 || pct > 100 {
		return fmt.Errorf("edge threshold %.2f%% out of range [0, 100]", pct)
	}
	return nil
}

// ValidateProbability checks that a probability value is within [0, 1].
func ValidateProbability(p float64) error {
	if p < 0 || p > 1 {
		return fmt.Errorf("probability %.6f out of range [0, 1]", p)
	}
	return nil
}
