package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Vrajp610/spy-daytrader-sub000/pkg/types"
	"go.uber.org/zap"
)

// Store persists bar history as JSON files, one per symbol and timeframe,
// with an in-memory cache in front. Replay jobs read recorded sessions
// from it.
type Store struct {
	mu      sync.RWMutex
	logger  *zap.Logger
	dataDir string
	cache   map[string][]types.Bar
}

// NewStore creates a bar store rooted at dataDir.
func NewStore(logger *zap.Logger, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}
	return &Store{
		logger:  logger.Named("store"),
		dataDir: dataDir,
		cache:   make(map[string][]types.Bar),
	}, nil
}

// Save writes a bar series for the symbol and timeframe, replacing any
// existing file.
func (s *Store) Save(symbol string, timeframe types.Timeframe, bars []types.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := append([]types.Bar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })

	data, err := json.Marshal(sorted)
	if err != nil {
		return fmt.Errorf("encoding bars: %w", err)
	}
	if err := os.WriteFile(s.filename(symbol, timeframe), data, 0o644); err != nil {
		return fmt.Errorf("writing bars: %w", err)
	}

	s.cache[cacheKey(symbol, timeframe)] = sorted
	s.logger.Info("bars saved",
		zap.String("symbol", symbol),
		zap.String("timeframe", string(timeframe)),
		zap.Int("bars", len(sorted)))
	return nil
}

// Load returns the full bar series for the symbol and timeframe.
func (s *Store) Load(ctx context.Context, symbol string, timeframe types.Timeframe) ([]types.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	cached, ok := s.cache[cacheKey(symbol, timeframe)]
	s.mu.RUnlock()
	if ok {
		return append([]types.Bar(nil), cached...), nil
	}

	data, err := os.ReadFile(s.filename(symbol, timeframe))
	if err != nil {
		return nil, fmt.Errorf("reading bars for %s %s: %w", symbol, timeframe, err)
	}
	var bars []types.Bar
	if err := json.Unmarshal(data, &bars); err != nil {
		return nil, fmt.Errorf("decoding bars for %s: %w", symbol, err)
	}

	s.mu.Lock()
	s.cache[cacheKey(symbol, timeframe)] = bars
	s.mu.Unlock()
	return append([]types.Bar(nil), bars...), nil
}

// LoadRange returns bars within [start, end].
func (s *Store) LoadRange(ctx context.Context, symbol string, timeframe types.Timeframe, start, end time.Time) ([]types.Bar, error) {
	bars, err := s.Load(ctx, symbol, timeframe)
	if err != nil {
		return nil, err
	}
	out := bars[:0:0]
	for _, b := range bars {
		if b.Timestamp.Before(start) || b.Timestamp.After(end) {
			continue
		}
		out = append(out, b)
	}
	return out, nil
}

// Symbols lists the symbols with stored data.
func (s *Store) Symbols() []string {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".json") {
			continue
		}
		parts := strings.SplitN(strings.TrimSuffix(name, ".json"), "_", 2)
		if len(parts) != 2 || seen[parts[0]] {
			continue
		}
		seen[parts[0]] = true
		out = append(out, parts[0])
	}
	sort.Strings(out)
	return out
}

func (s *Store) filename(symbol string, timeframe types.Timeframe) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s_%s.json", symbol, timeframe))
}

func cacheKey(symbol string, timeframe types.Timeframe) string {
	return fmt.Sprintf("%s_%s", symbol, timeframe)
}
