// Package strategy fuses indicator, pattern and microstructure evidence into
// one directional signal per tick. A strategy is a named weighting over a
// closed rule set; swapping strategies never touches the aggregation
// algorithm.
package strategy

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Sonofgod20/trading-ai/internal/model"
)

// Strategy is a named {rule → weight} mapping. Rules absent from Weights are
// disabled. Weights are positive; the rule's vote carries the sign.
type Strategy struct {
	Name    string             `mapstructure:"name"`
	Weights map[RuleID]float64 `mapstructure:"weights"`
}

// Validate rejects strategies referencing unknown rules or holding no
// positive weight at all.
func (s Strategy) Validate() error {
	total := 0.0
	for id, w := range s.Weights {
		if _, ok := rules[id]; !ok {
			return fmt.Errorf("strategy %q: unknown rule %q", s.Name, id)
		}
		if w < 0 {
			return fmt.Errorf("strategy %q: rule %q has negative weight %.2f", s.Name, id, w)
		}
		total += w
	}
	if total <= 0 {
		return fmt.Errorf("strategy %q: no positive rule weights", s.Name)
	}
	return nil
}

// DefaultStrategy mirrors the weighting used in live trading: trend
// alignment dominates, RSI second, patterns and microstructure refine.
func DefaultStrategy() Strategy {
	return Strategy{
		Name: "default",
		Weights: map[RuleID]float64{
			RuleEMAAlignment:   30,
			RuleRSIExtreme:     15,
			RuleRSIDivergence:  10,
			RuleMACDCross:      20,
			RuleEMACross:       15,
			RulePressure:       10,
			RulePattern:        15,
			RulePatternAtLevel: 20,
		},
	}
}

// Aggregator evaluates the active strategy over per-tick inputs. It keeps
// the previous tick's inputs per symbol so crossover rules can detect sign
// changes. Evaluation is deterministic: the same input sequence always
// produces the same signal sequence.
type Aggregator struct {
	mu       sync.RWMutex
	strategy Strategy
	prev     map[string]Inputs

	// epsilon is the dead zone around zero: weighted sums inside it yield
	// direction none.
	epsilon float64
}

// NewAggregator creates an aggregator running the given strategy.
func NewAggregator(s Strategy) (*Aggregator, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{
		strategy: s,
		prev:     make(map[string]Inputs, 8),
		epsilon:  1e-9,
	}, nil
}

// SetStrategy swaps the active strategy. Safe to call while Evaluate runs;
// per-symbol crossover state is retained across the swap.
func (a *Aggregator) SetStrategy(s Strategy) error {
	if err := s.Validate(); err != nil {
		return err
	}
	a.mu.Lock()
	a.strategy = s
	a.mu.Unlock()
	return nil
}

// ActiveStrategy returns the name of the currently applied strategy.
func (a *Aggregator) ActiveStrategy() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.strategy.Name
}

// Evaluate runs every weighted rule against the inputs and fuses the votes:
// direction = sign of Σ weight×vote, strength = |sum| normalized by the
// total enabled weight, factors = every rule that fired. A sum within
// epsilon of zero yields direction none.
func (a *Aggregator) Evaluate(cur Inputs) model.Signal {
	a.mu.Lock()
	strat := a.strategy
	var prev *Inputs
	if p, ok := a.prev[cur.Symbol]; ok {
		prev = &p
	}
	a.prev[cur.Symbol] = cur
	a.mu.Unlock()

	// Deterministic rule order regardless of map iteration.
	ids := make([]RuleID, 0, len(strat.Weights))
	for id := range strat.Weights {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var sum, totalWeight float64
	var factors []string
	for _, id := range ids {
		weight := strat.Weights[id]
		if weight <= 0 {
			continue
		}
		totalWeight += weight
		vote, fired := rules[id](cur, prev)
		if !fired {
			continue
		}
		sum += weight * vote
		factors = append(factors, string(id))
	}

	sig := model.Signal{
		Symbol:  cur.Symbol,
		Price:   cur.Price,
		TS:      cur.TS,
		Factors: factors,
	}
	if totalWeight <= 0 || math.Abs(sum) <= a.epsilon {
		sig.Direction = model.DirectionNone
		return sig
	}

	sig.Strength = math.Abs(sum) / totalWeight
	if sum > 0 {
		sig.Direction = model.DirectionLong
	} else {
		sig.Direction = model.DirectionShort
	}
	return sig
}
