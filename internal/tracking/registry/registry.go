// Package registry holds the per-chain service wiring, constructed once at
// startup and passed by reference into each component. It replaces hidden
// global service maps while preserving per-chain lookup semantics.
package registry

import (
	"github.com/vietddude/txmonitor/internal/infra/chain"
	"github.com/vietddude/txmonitor/internal/infra/relay"
	"github.com/vietddude/txmonitor/internal/tracking/classifier"
	"github.com/vietddude/txmonitor/internal/tracking/notifier"
	"github.com/vietddude/txmonitor/internal/tracking/waiter"
)

// ChainServices bundles everything built for one chain.
type ChainServices struct {
	ChainID    uint64
	Name       string
	Gateway    *chain.Client
	Relay      *relay.Client // nil when no private relay is configured
	Classifier *classifier.Classifier
	Waiter     *waiter.Waiter
	Notifier   *notifier.Notifier
}

// Registry resolves services by chain id or relayer-pool name.
type Registry struct {
	chains map[uint64]*ChainServices
	pools  map[string]*ChainServices
}

// New creates an empty Registry.
func New() *Registry {
	return &Registry{
		chains: make(map[uint64]*ChainServices),
		pools:  make(map[string]*ChainServices),
	}
}

// Register adds a chain's services and maps its pools to it.
func (r *Registry) Register(svc *ChainServices, pools []string) {
	r.chains[svc.ChainID] = svc
	for _, p := range pools {
		r.pools[p] = svc
	}
}

// Chain resolves services by chain id.
func (r *Registry) Chain(id uint64) (*ChainServices, bool) {
	svc, ok := r.chains[id]
	return svc, ok
}

// Pool resolves services by relayer-pool name.
func (r *Registry) Pool(name string) (*ChainServices, bool) {
	svc, ok := r.pools[name]
	return svc, ok
}

// Chains returns all registered chain services.
func (r *Registry) Chains() []*ChainServices {
	out := make([]*ChainServices, 0, len(r.chains))
	for _, svc := range r.chains {
		out = append(out, svc)
	}
	return out
}
