package sniper

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/logger"
)

// StartSummary emits a periodic market-wide digest of what the
// detectors saw, then resets the counters.
func (s *Sniper) StartSummary(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.cfg.SummaryInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.EmitSummary()
			}
		}
	}()
}

// EmitSummary publishes one digest event covering the window since the
// last digest. Quiet windows emit nothing.
func (s *Sniper) EmitSummary() {
	s.sumMu.Lock()
	counts := s.counts
	whales := s.whales
	s.counts = make(map[models.EventCategory]int)
	s.whales = nil
	s.sumMu.Unlock()

	total := 0
	for _, n := range counts {
		total += n
	}
	if total == 0 {
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d alerts in the last window.", total)
	cats := make([]string, 0, len(counts))
	for c := range counts {
		cats = append(cats, string(c))
	}
	sort.Strings(cats)
	for _, c := range cats {
		fmt.Fprintf(&b, " %s: %d.", c, counts[models.EventCategory(c)])
	}

	top := topWhales(whales, 3)
	for i, w := range top {
		fmt.Fprintf(&b, " Top whale %d: %s.", i+1, w.Title)
	}

	meta := map[string]interface{}{"alert_total": total}
	for c, n := range counts {
		meta["count_"+string(c)] = n
	}

	e := s.pool.CreateAIInsight("MARKET", "Market activity summary", b.String(), models.PriorityMedium, meta)
	if e != nil {
		s.log.Info("market summary emitted", logger.Int("alerts", total))
	}
}

// topWhales orders whale events by notional value descending.
func topWhales(whales []*models.AIEvent, n int) []*models.AIEvent {
	sorted := make([]*models.AIEvent, len(whales))
	copy(sorted, whales)
	sort.Slice(sorted, func(i, j int) bool {
		vi, _ := sorted[i].MetadataFloat("value")
		vj, _ := sorted[j].MetadataFloat("value")
		return vi > vj
	})
	if len(sorted) > n {
		sorted = sorted[:n]
	}
	return sorted
}
