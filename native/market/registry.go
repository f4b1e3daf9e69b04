package market

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"lendcore/native/comptroller"
)

// Registry resolves market addresses. It backs the comptroller's market
// source and lets a market find the collateral market during liquidation.
type Registry struct {
	mu      sync.RWMutex
	markets map[common.Address]*Market
	order   []common.Address
}

func NewRegistry() *Registry {
	return &Registry{markets: make(map[common.Address]*Market)}
}

// Add registers market and links it back to the registry. Adding an address
// twice replaces the earlier market.
func (r *Registry) Add(market *Market) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[market.address]; !ok {
		r.order = append(r.order, market.address)
	}
	r.markets[market.address] = market
	market.registry = r
}

// Get returns the concrete market at addr.
func (r *Registry) Get(addr common.Address) (*Market, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	market, ok := r.markets[addr]
	return market, ok
}

// Market implements comptroller.MarketSource.
func (r *Registry) Market(addr common.Address) (comptroller.MarketView, bool) {
	market, ok := r.Get(addr)
	if !ok {
		return nil, false
	}
	return market, true
}

// Addresses lists registered markets in registration order.
func (r *Registry) Addresses() []common.Address {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]common.Address(nil), r.order...)
}

// Remove forgets the market at addr.
func (r *Registry) Remove(addr common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.markets[addr]; !ok {
		return
	}
	delete(r.markets, addr)
	for i, existing := range r.order {
		if existing == addr {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
