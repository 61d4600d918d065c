package runtime

import (
	"sort"
	"sync"

	"github.com/wippyai/dss-runtime/engine"
)

// registry tracks live actor engines by context token so runtime close can
// report anything the caller forgot to dispose.
type registry struct {
	mu   sync.Mutex
	live map[engine.Token]*Engine
}

func newRegistry() *registry {
	return &registry{live: make(map[engine.Token]*Engine)}
}

func (g *registry) add(tok engine.Token, e *Engine) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.live[tok] = e
}

func (g *registry) remove(tok engine.Token) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.live, tok)
}

func (g *registry) len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.live)
}

// drain empties the registry and returns the leaked tokens in a stable
// order.
func (g *registry) drain() []engine.Token {
	g.mu.Lock()
	defer g.mu.Unlock()
	toks := make([]engine.Token, 0, len(g.live))
	for tok := range g.live {
		toks = append(toks, tok)
	}
	g.live = make(map[engine.Token]*Engine)
	sort.Slice(toks, func(i, j int) bool { return toks[i] < toks[j] })
	return toks
}
