package optimizer

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/swarmguard/taskengine/internal/core/engerr"
	"github.com/swarmguard/taskengine/internal/platform/resilience"
	"github.com/swarmguard/taskengine/internal/provider"
)

// standardProbePrompt is sent to estimate_cost when ranking candidates; its
// content is irrelevant, only the provider's cost model is exercised.
const standardProbePrompt = "standard-probe"

// Requirements narrows a provider search to a capability set and an optional
// cost ceiling.
type Requirements struct {
	Capabilities []provider.Capability
	MaxCost      *float64
}

type costCacheKey struct {
	providerID string
	modelID    string
}

// CostAwareSelector ranks candidate providers by estimated cost and reserves
// the estimate against the Credit Ledger before returning a winner.
type CostAwareSelector struct {
	ledger   *Ledger
	registry *provider.Registry

	cacheMu sync.Mutex
	cache   map[costCacheKey]float64

	breakersMu sync.Mutex
	breakers   map[string]*resilience.CircuitBreaker
}

func NewCostAwareSelector(ledger *Ledger, registry *provider.Registry) *CostAwareSelector {
	return &CostAwareSelector{
		ledger:   ledger,
		registry: registry,
		cache:    make(map[costCacheKey]float64),
		breakers: make(map[string]*resilience.CircuitBreaker),
	}
}

// Select finds the cheapest provider satisfying req's capabilities, reserving
// its estimated cost against component's ledger allocation.
func (s *CostAwareSelector) Select(ctx context.Context, component string, req Requirements) (string, provider.Provider, error) {
	type candidate struct {
		providerID string
		modelID    string
		p          provider.Provider
		cost       float64
	}

	var candidates []candidate
	for _, id := range s.registry.List() {
		p, err := s.registry.Get(id)
		if err != nil {
			continue
		}
		bestCost, bestModel, ok := s.minCostModel(ctx, id, p, req.Capabilities)
		if !ok {
			continue
		}
		candidates = append(candidates, candidate{providerID: id, modelID: bestModel, p: p, cost: bestCost})
	}

	if len(candidates) == 0 {
		return "", nil, fmt.Errorf("no provider supports %v: %w", req.Capabilities, engerr.ErrNoProvider)
	}

	if req.MaxCost != nil {
		filtered := candidates[:0]
		for _, c := range candidates {
			if c.cost <= *req.MaxCost {
				filtered = append(filtered, c)
			}
		}
		candidates = filtered
	}
	if len(candidates) == 0 {
		return "", nil, fmt.Errorf("no candidate within max cost: %w", engerr.ErrNoAffordable)
	}

	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].cost < candidates[j].cost })
	winner := candidates[0]

	if s.ledger.Allocation(component) < winner.cost {
		if !s.ledger.Allocate(component, winner.cost) {
			return "", nil, fmt.Errorf("allocate %v for %s: %w", winner.cost, component, engerr.ErrNoAffordable)
		}
	}

	return winner.providerID, winner.p, nil
}

// minCostModel returns the cheapest model from p meeting every required
// capability, using a no-TTL cost cache keyed by (provider, model).
func (s *CostAwareSelector) minCostModel(ctx context.Context, providerID string, p provider.Provider, caps []provider.Capability) (float64, string, bool) {
	var best float64
	var bestModel string
	found := false

	for _, model := range p.ListModels() {
		if !meetsAll(model.Capabilities, caps) {
			continue
		}
		cost, err := s.estimateCost(ctx, providerID, p, model.ID)
		if err != nil {
			continue
		}
		if !found || cost < best {
			best = cost
			bestModel = model.ID
			found = true
		}
	}
	return best, bestModel, found
}

func (s *CostAwareSelector) estimateCost(ctx context.Context, providerID string, p provider.Provider, modelID string) (float64, error) {
	key := costCacheKey{providerID: providerID, modelID: modelID}
	s.cacheMu.Lock()
	if cached, ok := s.cache[key]; ok {
		s.cacheMu.Unlock()
		return cached, nil
	}
	s.cacheMu.Unlock()

	breaker := s.breakerFor(providerID)
	if !breaker.Allow() {
		return 0, fmt.Errorf("provider %s circuit open: %w", providerID, engerr.ErrProviderError)
	}
	cost, err := resilience.Retry(ctx, 3, 100*time.Millisecond, func() (float64, error) {
		return p.EstimateCost(ctx, modelID, standardProbePrompt, nil)
	})
	breaker.RecordResult(err == nil)
	if err != nil {
		return 0, fmt.Errorf("estimate cost for %s/%s: %w", providerID, modelID, engerr.ErrProviderError)
	}

	s.cacheMu.Lock()
	s.cache[key] = cost
	s.cacheMu.Unlock()
	return cost, nil
}

// ClearCache drops every cached cost estimate. There is no implicit TTL.
func (s *CostAwareSelector) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.cache = make(map[costCacheKey]float64)
}

func (s *CostAwareSelector) breakerFor(providerID string) *resilience.CircuitBreaker {
	s.breakersMu.Lock()
	defer s.breakersMu.Unlock()
	b, ok := s.breakers[providerID]
	if !ok {
		b = resilience.NewCircuitBreakerAdaptive(30*time.Second, 6, 5, 0.5, 15*time.Second, 2)
		s.breakers[providerID] = b
	}
	return b
}

func meetsAll(have []provider.Capability, want []provider.Capability) bool {
	set := make(map[provider.Capability]bool, len(have))
	for _, c := range have {
		set[c] = true
	}
	for _, w := range want {
		if !set[w] {
			return false
		}
	}
	return true
}
