package service

import (
	"context"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"trade_guard/internal/confluence"
	"trade_guard/internal/models"
	"trade_guard/pkg/logger"
)

// Universe lists the most volatile swaps when no watchlist is configured.
type Universe interface {
	TopVolatile(ctx context.Context, n int) ([]string, error)
}

type Analyzer interface {
	AnalyzeAll(ctx context.Context, symbol string, tfs []models.Timeframe) (map[models.Timeframe]models.TimeframeAnalysis, []models.Timeframe, error)
}

type Notifier interface {
	Notify(ctx context.Context, kind models.EventKind, payload any)
}

// Opportunity is one scored symbol. Side is set only when the result clears
// the minimum band and the structural gates.
type Opportunity struct {
	Result   models.ConfluenceResult
	Side     models.Side
	Tradable bool
}

func (o Opportunity) Best() float64 {
	if o.Result.ShortScore > o.Result.LongScore {
		return o.Result.ShortScore
	}
	return o.Result.LongScore
}

type Options struct {
	Watchlist   []string
	TopN        int
	MinBand     models.Band
	Concurrency int
}

type Scanner struct {
	universe Universe
	analyzer Analyzer
	scorer   confluence.Scorer
	notifier Notifier
	opts     Options
	log      *logger.Logger
}

func New(u Universe, a Analyzer, scorer confluence.Scorer, n Notifier, opts Options, log *logger.Logger) *Scanner {
	if opts.Concurrency < 1 {
		opts.Concurrency = 8
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scanner{universe: u, analyzer: a, scorer: scorer, notifier: n, opts: opts, log: log}
}

// Symbols resolves what to scan: explicit args, then the watchlist, then
// the top movers.
func (s *Scanner) Symbols(ctx context.Context, args []string) ([]string, error) {
	src := args
	if len(src) == 0 {
		src = s.opts.Watchlist
	}
	if len(src) == 0 {
		return s.universe.TopVolatile(ctx, s.opts.TopN)
	}
	out := make([]string, 0, len(src))
	seen := make(map[string]struct{}, len(src))
	for _, sym := range src {
		sym = strings.TrimSpace(sym)
		if sym == "" {
			continue
		}
		if _, dup := seen[sym]; dup {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out, nil
}

// Scan scores every symbol, best first. A symbol that fails to fetch is
// logged and left out rather than failing the batch.
func (s *Scanner) Scan(ctx context.Context, symbols []string) ([]Opportunity, error) {
	var (
		mu  sync.Mutex
		out = make([]Opportunity, 0, len(symbols))
	)
	tfs := s.scorer.Timeframes()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, sym := range symbols {
		sym := sym
		g.Go(func() error {
			per, missing, err := s.analyzer.AnalyzeAll(gctx, sym, tfs)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				s.log.Warn("scan skipped symbol", zap.String("symbol", sym), zap.Error(err))
				return nil
			}
			res := s.scorer.Score(sym, per, missing)
			side, ok := s.scorer.Decide(res, s.opts.MinBand)
			mu.Lock()
			out = append(out, Opportunity{Result: res, Side: side, Tradable: ok})
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tradable != out[j].Tradable {
			return out[i].Tradable
		}
		if out[i].Best() != out[j].Best() {
			return out[i].Best() > out[j].Best()
		}
		return out[i].Result.Symbol < out[j].Result.Symbol
	})

	tradable := 0
	for _, o := range out {
		if !o.Tradable {
			continue
		}
		tradable++
		if s.notifier != nil {
			s.notifier.Notify(ctx, models.EventOpportunity, o.Result)
		}
	}
	s.log.Info("scan finished",
		zap.Int("symbols", len(symbols)),
		zap.Int("scored", len(out)),
		zap.Int("tradable", tradable))
	return out, nil
}
