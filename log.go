package lrng

import (
	"os"
	"time"

	catrate "github.com/joeycumines/go-catrate"
	"github.com/rs/zerolog"
)

// debugEnabled turns on a console debug logger when no logger is configured.
var debugEnabled = os.Getenv("LRNG_DEBUG") == "1"

// Categories of rate limited warnings.
const (
	warnCollectorHash = "collector-hash"
	warnCollectorInit = "collector-init"
	warnSeed          = "seed"
	warnGenerate      = "generate"
	warnNoise         = "noise"
)

// defaultLogger returns the logger used when Config.Logger is nil.
func defaultLogger() zerolog.Logger {
	if debugEnabled {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(zerolog.DebugLevel).
			With().Timestamp().Str("component", "lrng").Logger()
	}
	return zerolog.Nop()
}

// newWarnLimiter limits every warning category to two messages per second
// and twenty per minute.
func newWarnLimiter() *catrate.Limiter {
	return catrate.NewLimiter(map[time.Duration]int{
		time.Second: 2,
		time.Minute: 20,
	})
}

// warn returns a warning event, or nil once category has exceeded its rate.
// Methods on a nil event are no-ops.
func (r *RNG) warn(category string) *zerolog.Event {
	if _, ok := r.limiter.Allow(category); !ok {
		return nil
	}
	return r.log.Warn().Str("category", category)
}
