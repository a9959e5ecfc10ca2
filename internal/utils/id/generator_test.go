package id

import (
	"regexp"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var safeIDPattern = regexp.MustCompile(`^[0-9A-Za-z-]+$`)

func TestGeneratorStrategies(t *testing.T) {
	cases := []struct {
		name     string
		strategy Strategy
		check    func(t *testing.T, v string)
	}{
		{"uuidv4", StrategyUUIDv4, func(t *testing.T, v string) {
			parsed, err := uuid.Parse(v)
			require.NoError(t, err)
			assert.Equal(t, uuid.Version(4), parsed.Version())
		}},
		{"uuidv7", StrategyUUIDv7, func(t *testing.T, v string) {
			parsed, err := uuid.Parse(v)
			require.NoError(t, err)
			assert.Equal(t, uuid.Version(7), parsed.Version())
		}},
		{"ksuid", StrategyKSUID, func(t *testing.T, v string) {
			assert.Len(t, v, 27)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGenerator(tc.strategy)
			v := g.NewID()
			assert.Regexp(t, safeIDPattern, v)
			tc.check(t, v)
		})
	}
}

func TestGeneratorConcurrentUniqueness(t *testing.T) {
	g := NewGenerator(StrategyUUIDv4)
	const workers, perWorker = 8, 500

	var mu sync.Mutex
	seen := make(map[string]struct{}, workers*perWorker)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			local := make([]string, 0, perWorker)
			for i := 0; i < perWorker; i++ {
				local = append(local, g.NewID())
			}
			mu.Lock()
			defer mu.Unlock()
			for _, v := range local {
				seen[v] = struct{}{}
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, workers*perWorker)
}

func TestParseStrategy(t *testing.T) {
	s, err := ParseStrategy("KSUID")
	require.NoError(t, err)
	assert.Equal(t, StrategyKSUID, s)

	s, err = ParseStrategy("")
	require.NoError(t, err)
	assert.Equal(t, StrategyUUIDv4, s)

	_, err = ParseStrategy("snowflake")
	assert.Error(t, err)
}

func TestNewRequestIDPrefix(t *testing.T) {
	v := NewRequestID()
	assert.True(t, strings.HasPrefix(v, "req-"), v)
}
