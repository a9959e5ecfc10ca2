package id

import (
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/segmentio/ksuid"
)

// Strategy identifies the identifier generation algorithm to use.
type Strategy int

const (
	// StrategyUUIDv4 generates random RFC 4122 identifiers.
	StrategyUUIDv4 Strategy = iota
	// StrategyUUIDv7 generates time-ordered identifiers using UUID version 7.
	StrategyUUIDv7
	// StrategyKSUID generates lexicographically sortable identifiers using KSUID.
	StrategyKSUID
)

// ParseStrategy maps a config value to a Strategy. Unknown values fall back to UUIDv4.
func ParseStrategy(raw string) (Strategy, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "", "uuid", "uuidv4":
		return StrategyUUIDv4, nil
	case "uuidv7":
		return StrategyUUIDv7, nil
	case "ksuid":
		return StrategyKSUID, nil
	default:
		return StrategyUUIDv4, fmt.Errorf("unknown id strategy %q", raw)
	}
}

var (
	defaultGenerator = NewGenerator(StrategyUUIDv4)
)

// Generator produces opaque identifiers for stored media and requests.
// It is safe for concurrent use.
type Generator struct {
	mu       sync.RWMutex
	strategy Strategy
}

// NewGenerator returns a generator using strategy.
func NewGenerator(strategy Strategy) *Generator {
	return &Generator{strategy: strategy}
}

// Default returns the process-wide generator.
func Default() *Generator {
	return defaultGenerator
}

// SetStrategy configures the generation strategy for the default generator.
func SetStrategy(strategy Strategy) {
	defaultGenerator.setStrategy(strategy)
}

func (g *Generator) setStrategy(strategy Strategy) {
	g.mu.Lock()
	g.strategy = strategy
	g.mu.Unlock()
}

// NewID returns an unprefixed identifier. Media ids are used as file names,
// so the body only ever contains [0-9A-Za-z-].
func (g *Generator) NewID() string {
	g.mu.RLock()
	strategy := g.strategy
	g.mu.RUnlock()

	switch strategy {
	case StrategyUUIDv7:
		if uuidv7, err := uuid.NewV7(); err == nil {
			return uuidv7.String()
		}
		return uuid.NewString()
	case StrategyKSUID:
		return ksuid.New().String()
	default:
		return uuid.NewString()
	}
}

// NewMediaID generates an identifier for a stored media object.
func NewMediaID() string {
	return defaultGenerator.NewID()
}

// NewRequestID generates a request correlation identifier with a stable prefix for display.
func NewRequestID() string {
	return fmt.Sprintf("req-%s", ksuid.New().String())
}

// NewKSUID exposes raw KSUID generation for callers that need unprefixed identifiers.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewUUIDv7 exposes raw UUIDv7 generation for callers that need unprefixed identifiers.
func NewUUIDv7() string {
	uuidv7, err := uuid.NewV7()
	if err != nil {
		return ""
	}
	return uuidv7.String()
}
