package app

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"ratchet/internal/config"
	"ratchet/internal/position"
)

type StartupSummary struct {
	Env       string
	Venue     string
	Feed      string
	HTTPAddr  string
	Strategy  config.StrategyConfig
	Positions []position.Snapshot
	Out       io.Writer
}

func newStartupSummary(cfg *config.Config, snaps []position.Snapshot) *StartupSummary {
	sorted := append([]position.Snapshot(nil), snaps...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })
	return &StartupSummary{
		Env:       cfg.App.Env,
		Venue:     cfg.Venue.NormalizedKind(),
		Feed:      cfg.Feed.NormalizedKind(),
		HTTPAddr:  cfg.App.HTTPAddr,
		Strategy:  cfg.Strategy,
		Positions: sorted,
	}
}

func (s *StartupSummary) Print() {
	w := s.Out
	if w == nil {
		w = os.Stdout
	}
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "%*s\n", 40+len("STARTUP SUMMARY")/2, "STARTUP SUMMARY")
	fmt.Fprintln(w, rule)

	fmt.Fprintln(w, "[RUNTIME]")
	fmt.Fprintf(w, "  env: %s  venue: %s  feed: %s  http: %s\n", orDash(s.Env), orDash(s.Venue), orDash(s.Feed), orDash(s.HTTPAddr))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[MARGIN]")
	fmt.Fprintf(w, "  initial: %.4f  maintenance: %.4f  min profit: %.4f%%\n",
		s.Strategy.InitialMargin, s.Strategy.MaintenanceMargin, s.Strategy.MinProfitPct)
	fmt.Fprintf(w, "  commission: rate %.6f min %.6f  smoothing window: %d\n",
		s.Strategy.CommissionRate, s.Strategy.CommissionMin, s.Strategy.MovingAverageWindow)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[POSITIONS]")
	if len(s.Positions) == 0 {
		fmt.Fprintln(w, "  (none)")
	}
	for _, p := range s.Positions {
		fmt.Fprintf(w, "  > %s %s qty=%.8g funding=%.8g avg=%.8g offset=%.8g fraction=%.4g bands=%d rungs=%d\n",
			p.Symbol, p.RunState, p.Quantity, p.Funding, p.AveragePrice,
			p.TrailingOffset, p.TradeFraction, p.SafetyBands, len(p.EmergencyOrders))
	}
	fmt.Fprintln(w, rule)
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
