package scheduler

import (
	"context"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/fundsync/internal/model"
)

// FallbackUniverse is used when the stored universe is empty; it keeps a
// fresh deployment able to produce data before any seeding has happened.
var FallbackUniverse = []string{
	"AAPL", "MSFT", "GOOGL", "AMZN", "NVDA", "META", "TSLA", "JPM", "V", "JNJ",
}

const universePage = 500

// loadUniverse reads the full symbol universe page by page, dropping
// malformed and duplicate entries. An empty result falls back to the
// built-in list; a read failure is a run-level error.
func (s *Scheduler) loadUniverse(ctx context.Context) ([]string, error) {
	var symbols []string
	seen := make(map[string]bool)

	for offset := 0; ; offset += universePage {
		page, err := s.store.ListUniverse(ctx, universePage, offset)
		if err != nil {
			return nil, eris.Wrap(err, "scheduler: load universe")
		}
		for _, sym := range page {
			if !model.ValidSymbol(sym) {
				zap.L().Warn("scheduler: dropping malformed universe symbol",
					zap.String("symbol", sym))
				continue
			}
			if seen[sym] {
				continue
			}
			seen[sym] = true
			symbols = append(symbols, sym)
		}
		if len(page) < universePage {
			break
		}
	}

	if len(symbols) == 0 {
		zap.L().Info("scheduler: universe empty, using fallback list",
			zap.Int("symbols", len(FallbackUniverse)))
		symbols = append(symbols, FallbackUniverse...)
	}
	return symbols, nil
}
