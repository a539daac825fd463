package vector

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
)

type graphNode struct {
	vector    []float32
	neighbors [][]uint32 // neighbors[l] holds connections at level l
}

// Graph is a hierarchical navigable small-world graph over cosine distance
// (1 - inner product; vectors must be L2-normalized before insertion).
// It is not safe for concurrent use; Index serializes access to it.
type Graph struct {
	m              int
	maxM0          int
	efConstruction int
	levelMult      float64
	nodes          map[uint32]*graphNode
	entry          uint32
	hasEntry       bool
	maxLevel       int
	rng            *rand.Rand
}

// NewGraph creates an empty graph with connectivity m and construction
// breadth efConstruction.
func NewGraph(m, efConstruction int, seed int64) *Graph {
	if m <= 0 {
		m = 16
	}
	if efConstruction < m {
		efConstruction = 200
	}
	return &Graph{
		m:              m,
		maxM0:          2 * m,
		efConstruction: efConstruction,
		levelMult:      1.0 / math.Log(float64(m)),
		nodes:          make(map[uint32]*graphNode),
		rng:            rand.New(rand.NewSource(seed)),
	}
}

// Len returns the number of stored vectors.
func (g *Graph) Len() int { return len(g.nodes) }

// Contains reports whether label is stored.
func (g *Graph) Contains(label uint32) bool {
	_, ok := g.nodes[label]
	return ok
}

func (g *Graph) distance(q []float32, label uint32) float64 {
	return 1 - Dot(q, g.nodes[label].vector)
}

func (g *Graph) randomLevel() int {
	return int(math.Floor(-math.Log(g.rng.Float64()) * g.levelMult))
}

// Candidate is a graph search hit with its cosine distance to the query.
type Candidate struct {
	Label    uint32
	Distance float64
}

// Insert adds a vector under label, or overwrites the stored vector when the
// label already exists. Overwrite keeps the existing links; the graph around
// a heavily updated label degrades until the next full rebuild compacts it.
func (g *Graph) Insert(label uint32, vec []float32) {
	if node, ok := g.nodes[label]; ok {
		node.vector = vec
		return
	}

	level := g.randomLevel()
	node := &graphNode{vector: vec, neighbors: make([][]uint32, level+1)}
	g.nodes[label] = node

	if !g.hasEntry {
		g.entry = label
		g.maxLevel = level
		g.hasEntry = true
		return
	}

	cur := g.entry
	curDist := g.distance(vec, cur)

	// Greedy descent through levels above the new node's level.
	for l := g.maxLevel; l > level; l-- {
		cur, curDist = g.greedyStep(vec, cur, curDist, l)
	}

	top := level
	if top > g.maxLevel {
		top = g.maxLevel
	}
	for l := top; l >= 0; l-- {
		cands := g.searchLayer(vec, cur, g.efConstruction, l)
		selected := g.selectNeighbors(cands, g.m)
		node.neighbors[l] = selected

		capAt := g.m
		if l == 0 {
			capAt = g.maxM0
		}
		for _, n := range selected {
			g.link(n, label, l, capAt)
		}
		if len(cands) > 0 {
			cur = cands[0].Label
		}
	}

	if level > g.maxLevel {
		g.maxLevel = level
		g.entry = label
	}
}

// greedyStep moves to the closest neighbor at the given level until no
// neighbor improves on the current distance.
func (g *Graph) greedyStep(q []float32, cur uint32, curDist float64, level int) (uint32, float64) {
	for {
		improved := false
		node := g.nodes[cur]
		if level < len(node.neighbors) {
			for _, n := range node.neighbors[level] {
				if d := g.distance(q, n); d < curDist {
					cur, curDist = n, d
					improved = true
				}
			}
		}
		if !improved {
			return cur, curDist
		}
	}
}

// searchLayer runs a best-first search at one level and returns up to ef
// candidates sorted by ascending distance.
func (g *Graph) searchLayer(q []float32, entry uint32, ef, level int) []Candidate {
	entryDist := g.distance(q, entry)
	visited := map[uint32]struct{}{entry: {}}

	candidates := &minDistHeap{{Label: entry, Distance: entryDist}}
	results := &maxDistHeap{{Label: entry, Distance: entryDist}}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(Candidate)
		worst := (*results)[0].Distance
		if c.Distance > worst && results.Len() >= ef {
			break
		}
		node := g.nodes[c.Label]
		if level >= len(node.neighbors) {
			continue
		}
		for _, n := range node.neighbors[level] {
			if _, seen := visited[n]; seen {
				continue
			}
			visited[n] = struct{}{}
			d := g.distance(q, n)
			if results.Len() < ef || d < (*results)[0].Distance {
				heap.Push(candidates, Candidate{Label: n, Distance: d})
				heap.Push(results, Candidate{Label: n, Distance: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]Candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(Candidate)
	}
	return out
}

// selectNeighbors keeps the closest max candidates.
func (g *Graph) selectNeighbors(cands []Candidate, max int) []uint32 {
	if len(cands) > max {
		cands = cands[:max]
	}
	out := make([]uint32, len(cands))
	for i, c := range cands {
		out[i] = c.Label
	}
	return out
}

// link adds a back-edge from n to label at the given level, pruning n's
// neighbor list to the closest capAt entries when it overflows.
func (g *Graph) link(n, label uint32, level, capAt int) {
	node := g.nodes[n]
	for level >= len(node.neighbors) {
		node.neighbors = append(node.neighbors, nil)
	}
	node.neighbors[level] = append(node.neighbors[level], label)
	if len(node.neighbors[level]) <= capAt {
		return
	}
	nbrs := node.neighbors[level]
	sort.Slice(nbrs, func(i, j int) bool {
		return g.distance(node.vector, nbrs[i]) < g.distance(node.vector, nbrs[j])
	})
	node.neighbors[level] = nbrs[:capAt]
}

// Search returns up to k candidates by ascending cosine distance, exploring
// with breadth ef (raised to k when smaller).
func (g *Graph) Search(q []float32, k, ef int) []Candidate {
	if !g.hasEntry || k <= 0 {
		return nil
	}
	if ef < k {
		ef = k
	}

	cur := g.entry
	curDist := g.distance(q, cur)
	for l := g.maxLevel; l > 0; l-- {
		cur, curDist = g.greedyStep(q, cur, curDist, l)
	}

	cands := g.searchLayer(q, cur, ef, 0)
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands
}

type minDistHeap []Candidate

func (h minDistHeap) Len() int            { return len(h) }
func (h minDistHeap) Less(i, j int) bool  { return h[i].Distance < h[j].Distance }
func (h minDistHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minDistHeap) Push(x interface{}) { *h = append(*h, x.(Candidate)) }
func (h *minDistHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

type maxDistHeap []Candidate

func (h maxDistHeap) Len() int            { return len(h) }
func (h maxDistHeap) Less(i, j int) bool  { return h[i].Distance > h[j].Distance }
func (h maxDistHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxDistHeap) Push(x interface{}) { *h = append(*h, x.(Candidate)) }
func (h *maxDistHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
