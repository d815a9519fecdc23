package sniper

import (
	"fmt"
	"math"
	"sort"

	"MarketPulse/internal/domain/models"
	"MarketPulse/pkg/logger"
)

const (
	optionVolumeRatio = 3.0
	optionVolumeFloor = 100.0
	strikeMatchEps    = 0.01
	moneyBand         = 0.3
	strikeScanCap     = 30
)

// OnOptionChain diffs a fresh chain snapshot against the previous one
// and emits alerts for volume spikes and IV jumps on matched strikes.
// Only the nearest expiries (cfg.OptionExpiries) and near-the-money
// strikes, within moneyBand of spot and capped at strikeScanCap
// strikes around it, are compared.
func (s *Sniper) OnOptionChain(chain *models.OptionChain) {
	s.mu.Lock()
	st := s.stateFor(chain.Symbol)
	var prev *models.OptionChain
	if n := len(st.chains); n > 0 {
		prev = st.chains[n-1]
	}
	st.chains = append(st.chains, chain)
	if len(st.chains) > chainHistoryCap {
		st.chains = st.chains[len(st.chains)-chainHistoryCap:]
	}
	s.mu.Unlock()

	if prev == nil {
		return
	}

	expiries := chain.Expiries
	if len(expiries) > s.cfg.OptionExpiries {
		expiries = expiries[:s.cfg.OptionExpiries]
	}

	for _, expiry := range expiries {
		cur := nearTheMoney(chain.ByExpiry(expiry), chain.Underlying)
		old := prev.ByExpiry(expiry)
		if len(old) == 0 {
			continue
		}
		for _, c := range cur {
			p, ok := matchContract(old, c)
			if !ok {
				continue
			}

			ratio := c.Volume / math.Max(p.Volume, 1)
			dIV := c.IV - p.IV

			if ratio > optionVolumeRatio && c.Volume > optionVolumeFloor {
				s.emitOptionAlert(chain, c, fmt.Sprintf("%.1fx volume spike", ratio), map[string]interface{}{
					"volume_ratio": ratio,
					"volume":       c.Volume,
					"prev_volume":  p.Volume,
				}, ratio > 5 || math.Abs(dIV) > 0.2)
			}
			if math.Abs(dIV) > s.cfg.OptionIVThreshold {
				s.emitOptionAlert(chain, c, fmt.Sprintf("IV moved %+.1f pts", dIV*100), map[string]interface{}{
					"iv":       c.IV,
					"prev_iv":  p.IV,
					"iv_delta": dIV,
				}, ratio > 5 || math.Abs(dIV) > 0.2)
			}
		}
	}
}

func (s *Sniper) emitOptionAlert(chain *models.OptionChain, c models.OptionContract, what string, metadata map[string]interface{}, high bool) {
	priority := models.PriorityMedium
	if high {
		priority = models.PriorityHigh
	}
	metadata["strike"] = c.Strike
	metadata["expiry"] = c.Expiry
	metadata["type"] = c.Type

	money := moneyness(c, chain.Underlying)
	title := fmt.Sprintf("%s %s %.0f %s: %s (%s)",
		chain.Symbol, c.Expiry, c.Strike, contractTag(c.Type), what, money)
	content := fmt.Sprintf("Option activity anomaly on %s %s strike %.2f (%s, %s): %s.",
		chain.Symbol, c.Expiry, c.Strike, c.Type, money, what)

	e := s.pool.CreateOptionsAlert(chain.Symbol, title, content, priority, metadata)
	if e != nil {
		s.recordAlert(e)
		s.log.Info("options alert",
			logger.String("symbol", chain.Symbol),
			logger.String("what", what),
			logger.Any("strike", c.Strike))
	}
}

// nearTheMoney drops contracts struck outside the moneyness band and,
// past strikeScanCap distinct strikes, the ones furthest from spot.
// Chains without an underlying price pass through unfiltered.
func nearTheMoney(contracts []models.OptionContract, spot float64) []models.OptionContract {
	if spot <= 0 {
		return contracts
	}
	strikes := make(map[float64]struct{})
	for _, c := range contracts {
		if math.Abs(c.Strike-spot)/spot <= moneyBand {
			strikes[c.Strike] = struct{}{}
		}
	}
	keep := make([]float64, 0, len(strikes))
	for k := range strikes {
		keep = append(keep, k)
	}
	sort.Slice(keep, func(i, j int) bool {
		return math.Abs(keep[i]-spot) < math.Abs(keep[j]-spot)
	})
	if len(keep) > strikeScanCap {
		keep = keep[:strikeScanCap]
	}
	allowed := make(map[float64]struct{}, len(keep))
	for _, k := range keep {
		allowed[k] = struct{}{}
	}
	out := make([]models.OptionContract, 0, len(contracts))
	for _, c := range contracts {
		if _, ok := allowed[c.Strike]; ok {
			out = append(out, c)
		}
	}
	return out
}

// matchContract finds the previous-snapshot contract with the same
// type and an equal strike (within epsilon).
func matchContract(old []models.OptionContract, c models.OptionContract) (models.OptionContract, bool) {
	for _, p := range old {
		if p.Type == c.Type && math.Abs(p.Strike-c.Strike) < strikeMatchEps {
			return p, true
		}
	}
	return models.OptionContract{}, false
}

// moneyness labels a contract relative to the underlying price.
func moneyness(c models.OptionContract, underlying float64) string {
	if underlying <= 0 {
		return "n/a"
	}
	diff := (c.Strike - underlying) / underlying
	if math.Abs(diff) < 0.02 {
		return "ATM"
	}
	itm := diff < 0 // call: strike below spot
	if c.Type == "put" {
		itm = diff > 0
	}
	if itm {
		return "ITM"
	}
	return "OTM"
}

func contractTag(typ string) string {
	if typ == "put" {
		return "P"
	}
	return "C"
}
