package callgraph

import (
	"featloc/internal/entity"
	"featloc/internal/models"
)

const DefaultMaxDepth = 10

type ChainOptions struct {
	// MaxDepth bounds the number of ids in a chain.
	MaxDepth int
	// MaxChainsPerRoot stops enumeration for a root once reached. 0 means unlimited.
	MaxChainsPerRoot int
}

func DefaultChainOptions() ChainOptions {
	return ChainOptions{MaxDepth: DefaultMaxDepth}
}

// Graph is the adjacency built from Call relations. Duplicate call sites stay
// as duplicate entries.
type Graph struct {
	edges  map[int][]int
	called map[int]bool
}

func NewGraph(functions []*models.CodeEntity) *Graph {
	g := &Graph{edges: make(map[int][]int), called: make(map[int]bool)}
	for _, fn := range functions {
		for _, rel := range fn.Relations {
			if rel.Category != models.RelationCall {
				continue
			}
			g.edges[fn.ID] = append(g.edges[fn.ID], rel.To)
			g.called[rel.To] = true
		}
	}
	return g
}

// Roots returns the ids of functions that are never a call target, in scan order.
func (g *Graph) Roots(functions []*models.CodeEntity) []int {
	var roots []int
	for _, fn := range functions {
		if !g.called[fn.ID] {
			roots = append(roots, fn.ID)
		}
	}
	return roots
}

// Chains enumerates the maximal simple paths from root. A path ends when it
// holds opts.MaxDepth ids or when the last node has no successor off the path.
func (g *Graph) Chains(root int, opts ChainOptions) []models.CallChain {
	if opts.MaxDepth < 1 {
		opts.MaxDepth = DefaultMaxDepth
	}
	w := &walker{
		graph:  g,
		opts:   opts,
		onPath: make(map[int]bool),
	}
	w.visit(root)
	return w.chains
}

type walker struct {
	graph  *Graph
	opts   ChainOptions
	path   []int
	onPath map[int]bool
	chains []models.CallChain
}

func (w *walker) full() bool {
	return w.opts.MaxChainsPerRoot > 0 && len(w.chains) >= w.opts.MaxChainsPerRoot
}

func (w *walker) visit(id int) {
	w.path = append(w.path, id)
	w.onPath[id] = true
	defer func() {
		w.path = w.path[:len(w.path)-1]
		delete(w.onPath, id)
	}()

	extended := false
	if len(w.path) < w.opts.MaxDepth {
		for _, next := range w.graph.edges[id] {
			if w.full() {
				return
			}
			if w.onPath[next] {
				continue
			}
			extended = true
			w.visit(next)
		}
	}
	if !extended && !w.full() {
		chain := make(models.CallChain, len(w.path))
		copy(chain, w.path)
		w.chains = append(w.chains, chain)
	}
}

// EnumerateChains sets CallChains on every Function entity: roots receive their
// chains, every other function an empty list. Relations must already be built.
// It returns the chains keyed by root id.
func EnumerateChains(store *entity.Store, opts ChainOptions) map[int][]models.CallChain {
	functions := store.Functions()
	g := NewGraph(functions)

	byRoot := make(map[int][]models.CallChain)
	for _, root := range g.Roots(functions) {
		byRoot[root] = g.Chains(root, opts)
	}
	for _, fn := range functions {
		if chains, ok := byRoot[fn.ID]; ok {
			fn.CallChains = chains
		} else {
			fn.CallChains = []models.CallChain{}
		}
	}
	return byRoot
}

type Stats struct {
	Functions int
	Relations int
	Roots     int
	Chains    int
}

// Annotate builds relations and then chains. Both must finish before the
// store is encoded.
func Annotate(store *entity.Store, resolver Resolver, opts ChainOptions) Stats {
	stats := Stats{
		Functions: len(store.Functions()),
		Relations: BuildRelations(store, resolver),
	}
	for _, chains := range EnumerateChains(store, opts) {
		stats.Roots++
		stats.Chains += len(chains)
	}
	return stats
}
