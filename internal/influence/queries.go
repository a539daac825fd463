package influence

import (
	"context"
	"sort"
	"time"

	"github.com/hyperjump/kizuna/internal/decay"
	"github.com/hyperjump/kizuna/internal/models"
)

// minEffectiveWeight is the floor below which a decayed edge is dropped from
// decay-aware query results.
const minEffectiveWeight = 0.05

// Over-fetch multipliers compensating for post-decay filtering.
const (
	pointOverFetch = 3
	graphOverFetch = 2
)

func defaultDecayRate() float64 { return decay.RateBalanced }

// InfluencersOf returns raw edges pointing at the note, heaviest first.
func (g *Graph) InfluencersOf(ctx context.Context, noteID string, limit int) ([]*models.InfluenceEdge, error) {
	return g.store.EdgesByTarget(ctx, noteID, limit)
}

// InfluencedBy returns raw edges originating at the note, heaviest first.
func (g *Graph) InfluencedBy(ctx context.Context, noteID string, limit int) ([]*models.InfluenceEdge, error) {
	return g.store.EdgesBySource(ctx, noteID, limit)
}

// AllEdges returns raw edges across the graph, heaviest first.
func (g *Graph) AllEdges(ctx context.Context, limit int) ([]*models.InfluenceEdge, error) {
	return g.store.AllEdges(ctx, limit)
}

// InfluencersOfDecayed is InfluencersOf with decay applied at query time.
func (g *Graph) InfluencersOfDecayed(ctx context.Context, noteID string, limit int) ([]*models.DecayedEdge, error) {
	raw, err := g.store.EdgesByTarget(ctx, noteID, overFetch(limit, pointOverFetch))
	if err != nil {
		return nil, err
	}
	return g.decayAndFilter(raw, limit), nil
}

// InfluencedByDecayed is InfluencedBy with decay applied at query time.
func (g *Graph) InfluencedByDecayed(ctx context.Context, noteID string, limit int) ([]*models.DecayedEdge, error) {
	raw, err := g.store.EdgesBySource(ctx, noteID, overFetch(limit, pointOverFetch))
	if err != nil {
		return nil, err
	}
	return g.decayAndFilter(raw, limit), nil
}

// AllEdgesDecayed is AllEdges with decay applied at query time.
func (g *Graph) AllEdgesDecayed(ctx context.Context, limit int) ([]*models.DecayedEdge, error) {
	raw, err := g.store.AllEdges(ctx, overFetch(limit, graphOverFetch))
	if err != nil {
		return nil, err
	}
	return g.decayAndFilter(raw, limit), nil
}

func overFetch(limit, factor int) int {
	if limit <= 0 {
		return 0
	}
	return limit * factor
}

// decayAndFilter applies decay to raw edges, drops ineffective ones, sorts by
// decayed weight, and truncates to limit.
func (g *Graph) decayAndFilter(raw []*models.InfluenceEdge, limit int) []*models.DecayedEdge {
	now := time.Now()
	edges := make([]*models.DecayedEdge, 0, len(raw))
	for _, e := range raw {
		d := g.decayEdge(e, now)
		if d.DecayedWeight < minEffectiveWeight {
			continue
		}
		edges = append(edges, d)
	}
	sort.Slice(edges, func(i, j int) bool {
		return edges[i].DecayedWeight > edges[j].DecayedWeight
	})
	if limit > 0 && len(edges) > limit {
		edges = edges[:limit]
	}
	return edges
}

func (g *Graph) decayEdge(e *models.InfluenceEdge, now time.Time) *models.DecayedEdge {
	ageDays := now.Sub(e.CreatedAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	factor := decay.Factor(ageDays, g.decayRate)
	return &models.DecayedEdge{
		InfluenceEdge: *e,
		DecayedWeight: e.Weight * factor,
		DecayFactor:   factor,
		AgeDays:       ageDays,
	}
}

// NodeInfluence aggregates a note's total influence in one direction.
type NodeInfluence struct {
	NoteID string  `json:"note_id"`
	Total  float64 `json:"total"`
	Count  int     `json:"count"`
}

// Stats summarizes the raw graph.
type Stats struct {
	EdgeCount      int             `json:"edge_count"`
	AvgWeight      float64         `json:"avg_weight"`
	MaxWeight      float64         `json:"max_weight"`
	TopInfluencers []NodeInfluence `json:"top_influencers"`
	TopInfluenced  []NodeInfluence `json:"top_influenced"`
}

// DecayStats extends Stats with decay-aware aggregates.
type DecayStats struct {
	Stats
	AvgDecayFactor float64 `json:"avg_decay_factor"`
	AvgAgeDays     float64 `json:"avg_age_days"`
	OldestAgeDays  float64 `json:"oldest_age_days"`
	NewestAgeDays  float64 `json:"newest_age_days"`
	EffectiveCount int     `json:"effective_count"`
	// DecayImpact is 1 - AvgDecayFactor: how much of the graph's raw weight
	// time has eroded.
	DecayImpact float64 `json:"decay_impact"`
}

// GraphStats computes raw-weight statistics over the whole graph.
func (g *Graph) GraphStats(ctx context.Context) (*Stats, error) {
	edges, err := g.store.AllEdges(ctx, 0)
	if err != nil {
		return nil, err
	}
	return buildStats(edges), nil
}

func buildStats(edges []*models.InfluenceEdge) *Stats {
	stats := &Stats{EdgeCount: len(edges)}
	if len(edges) == 0 {
		return stats
	}

	bySource := make(map[string]*NodeInfluence)
	byTarget := make(map[string]*NodeInfluence)
	total := 0.0
	for _, e := range edges {
		total += e.Weight
		if e.Weight > stats.MaxWeight {
			stats.MaxWeight = e.Weight
		}
		addInfluence(bySource, e.SourceNoteID, e.Weight)
		addInfluence(byTarget, e.TargetNoteID, e.Weight)
	}
	stats.AvgWeight = total / float64(len(edges))
	stats.TopInfluencers = topN(bySource, 5)
	stats.TopInfluenced = topN(byTarget, 5)
	return stats
}

// GraphDecayStats computes decay-aware statistics over the whole graph.
func (g *Graph) GraphDecayStats(ctx context.Context) (*DecayStats, error) {
	edges, err := g.store.AllEdges(ctx, 0)
	if err != nil {
		return nil, err
	}

	stats := &DecayStats{Stats: *buildStats(edges)}
	if len(edges) == 0 {
		return stats, nil
	}

	now := time.Now()
	sumFactor := 0.0
	sumAge := 0.0
	stats.NewestAgeDays = now.Sub(edges[0].CreatedAt).Hours() / 24
	for _, e := range edges {
		d := g.decayEdge(e, now)
		sumFactor += d.DecayFactor
		sumAge += d.AgeDays
		if d.AgeDays > stats.OldestAgeDays {
			stats.OldestAgeDays = d.AgeDays
		}
		if d.AgeDays < stats.NewestAgeDays {
			stats.NewestAgeDays = d.AgeDays
		}
		if d.DecayedWeight >= minEffectiveWeight {
			stats.EffectiveCount++
		}
	}
	n := float64(len(edges))
	stats.AvgDecayFactor = sumFactor / n
	stats.AvgAgeDays = sumAge / n
	stats.DecayImpact = 1 - stats.AvgDecayFactor
	return stats, nil
}

func addInfluence(m map[string]*NodeInfluence, noteID string, weight float64) {
	ni, ok := m[noteID]
	if !ok {
		ni = &NodeInfluence{NoteID: noteID}
		m[noteID] = ni
	}
	ni.Total += weight
	ni.Count++
}

func topN(m map[string]*NodeInfluence, n int) []NodeInfluence {
	out := make([]NodeInfluence, 0, len(m))
	for _, ni := range m {
		out = append(out, *ni)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].NoteID < out[j].NoteID
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
