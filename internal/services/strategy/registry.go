package strategy

import (
	"errors"
	"fmt"

	"SignalScope/internal/domain/models"
	"SignalScope/internal/services/analysis"
)

// Strategy names as used in requests and signals.
const (
	LegacyName     = "legacy"
	BreakoutName   = "breakout"
	BreakoutV2Name = "breakout_v2"
)

var componentKeys = map[string][]string{
	LegacyName:     legacyKeys,
	BreakoutName:   breakoutKeys,
	BreakoutV2Name: breakoutV2Keys,
}

// Components returns the fixed score breakdown keys of a strategy.
func Components(name string) []string {
	return append([]string(nil), componentKeys[name]...)
}

// ErrUnknownStrategy is returned when a request names a strategy that is
// not registered.
var ErrUnknownStrategy = errors.New("unknown strategy")

// Registry holds the enabled scorers in a stable order.
type Registry struct {
	byName map[string]Scorer
	order  []string
}

// NewRegistry registers the built-in scorers. enabled filters them; an
// empty list keeps all three.
func NewRegistry(cfg Config, enabled ...string) (*Registry, error) {
	all := []Scorer{
		NewLegacy(cfg.Legacy),
		NewBreakout(cfg.Breakout),
		NewBreakoutV2(cfg.BreakoutV2),
	}
	r := &Registry{byName: make(map[string]Scorer, len(all))}
	for _, s := range all {
		r.byName[s.Name()] = s
	}
	if len(enabled) == 0 {
		for _, s := range all {
			r.order = append(r.order, s.Name())
		}
		return r, nil
	}
	keep := make(map[string]Scorer, len(enabled))
	for _, name := range enabled {
		s, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, ErrUnknownStrategy)
		}
		if _, dup := keep[name]; dup {
			continue
		}
		keep[name] = s
		r.order = append(r.order, name)
	}
	r.byName = keep
	return r, nil
}

// Names lists the enabled strategies in registration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// Select resolves names to scorers. An empty selection means every enabled
// scorer.
func (r *Registry) Select(names []string) ([]Scorer, error) {
	if len(names) == 0 {
		names = r.order
	}
	out := make([]Scorer, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		s, ok := r.byName[name]
		if !ok {
			return nil, fmt.Errorf("%q: %w", name, ErrUnknownStrategy)
		}
		out = append(out, s)
	}
	return out, nil
}

// Run scores c with every scorer. A panicking scorer yields a WAIT signal
// for that strategy instead of taking the others down.
func Run(c *analysis.Context, scorers []Scorer) []models.Signal {
	out := make([]models.Signal, 0, len(scorers))
	for _, s := range scorers {
		out = append(out, safeScore(s, c))
	}
	return out
}

func safeScore(s Scorer, c *analysis.Context) (sig models.Signal) {
	defer func() {
		if r := recover(); r != nil {
			sh := newSheet(s.Name(), c, componentKeys[s.Name()])
			sh.note("panic", fmt.Sprint(r))
			sig = sh.wait("scorer_failed")
		}
	}()
	return s.Score(c)
}
