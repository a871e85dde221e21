package analysis

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trade_guard/internal/errs"
	"trade_guard/internal/models"
	"trade_guard/pkg/cache"
	"trade_guard/pkg/logger"
)

// CandleSource returns bars ordered oldest first.
type CandleSource interface {
	Candles(ctx context.Context, symbol string, tf models.Timeframe, limit int) ([]models.Bar, error)
}

// DefaultLimits is how many bars each timeframe requests.
var DefaultLimits = map[models.Timeframe]int{
	models.TF1d:  100,
	models.TF4h:  150,
	models.TF1h:  200,
	models.TF15m: 200,
}

type Fetcher struct {
	src    CandleSource
	cache  cache.Cache
	params Params
	limits map[models.Timeframe]int
	log    *logger.Logger
}

func NewFetcher(src CandleSource, c cache.Cache, params Params, limits map[models.Timeframe]int, log *logger.Logger) *Fetcher {
	if limits == nil {
		limits = DefaultLimits
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Fetcher{src: src, cache: c, params: params, limits: limits, log: log}
}

func (f *Fetcher) limit(tf models.Timeframe) int {
	if n, ok := f.limits[tf]; ok && n > 0 {
		return n
	}
	return 200
}

// cacheTTL keeps bars for a quarter of a bar, at least 30s.
func cacheTTL(tf models.Timeframe) time.Duration {
	ttl := tf.Duration() / 4
	if ttl < 30*time.Second {
		ttl = 30 * time.Second
	}
	return ttl
}

// Bars returns candles for one timeframe, served from cache when fresh.
func (f *Fetcher) Bars(ctx context.Context, symbol string, tf models.Timeframe) ([]models.Bar, error) {
	limit := f.limit(tf)
	key := fmt.Sprintf("bars:%s:%s:%d", symbol, tf, limit)
	if f.cache != nil {
		if v, ok := f.cache.Get(key); ok {
			if bars, ok := v.([]models.Bar); ok {
				return bars, nil
			}
		}
	}
	bars, err := f.src.Candles(ctx, symbol, tf, limit)
	if err != nil {
		return nil, err
	}
	if f.cache != nil && len(bars) > 0 {
		f.cache.Set(key, bars, cacheTTL(tf))
	}
	return bars, nil
}

// AnalyzeAll fetches and analyzes every timeframe in parallel. Timeframes
// without enough history are returned in missing instead of failing the call.
func (f *Fetcher) AnalyzeAll(ctx context.Context, symbol string, tfs []models.Timeframe) (map[models.Timeframe]models.TimeframeAnalysis, []models.Timeframe, error) {
	var (
		mu      sync.Mutex
		result  = make(map[models.Timeframe]models.TimeframeAnalysis, len(tfs))
		missing []models.Timeframe
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, tf := range tfs {
		tf := tf
		g.Go(func() error {
			bars, err := f.Bars(gctx, symbol, tf)
			if err != nil && !errs.Is(err, errs.DataInsufficient) {
				return fmt.Errorf("fetch %s %s: %w", symbol, tf, err)
			}
			var a models.TimeframeAnalysis
			if err == nil {
				a, err = Analyze(tf, bars, f.params)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if errs.Is(err, errs.DataInsufficient) {
					f.log.Debug("timeframe skipped", zap.String("symbol", symbol),
						zap.String("tf", string(tf)), zap.Error(err))
					missing = append(missing, tf)
					return nil
				}
				return err
			}
			result[tf] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i].Duration() > missing[j].Duration() })
	return result, missing, nil
}
