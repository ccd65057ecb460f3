package dataset

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Devyash0601/WGAST-test/internal/temporal"
)

// PlanPairs pairs every reference date with its nearest later target date and saves the pairs
// to path when it is set. Reference dates without a later target are dropped and logged.
func PlanPairs(reference, target []time.Time, path string, logger *slog.Logger) ([]temporal.Pair, temporal.PairReport, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pairs, report := temporal.PairDates(reference, target)
	for _, d := range report.Dropped {
		logger.Warn("no later target date", "t1", temporal.Format(d))
	}
	logger.Info("pairs planned", "kept", report.Kept, "dropped", len(report.Dropped))

	if path != "" {
		if err := temporal.SavePairs(path, pairs); err != nil {
			return nil, report, fmt.Errorf("failed to save pairs: %w", err)
		}
	}
	return pairs, report, nil
}
