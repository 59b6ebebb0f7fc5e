// Package layout positions skill nodes for drawing. Positions are
// presentation only; availability never reads them.
package layout

import (
	"fmt"
	"math"
	"sort"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
)

// -- Configuration --

// Mode selects the arrangement.
type Mode string

const (
	// Tiered puts each tier on its own row, root at the top.
	Tiered Mode = "tiered"
	// Radial puts each tier on a ring around the root.
	Radial Mode = "radial"
)

// TierSource selects which tier drives the arrangement.
type TierSource string

const (
	// AuthoredTiers uses the tier written in the tree document.
	AuthoredTiers TierSource = "authored"
	// DerivedTiers uses the depth computed from prerequisites.
	DerivedTiers TierSource = "derived"
)

// Options controls spacing. Zero values take the defaults.
type Options struct {
	Mode        Mode
	Tiers       TierSource
	NodeSpacing float64 // horizontal gap between nodes in a row
	TierSpacing float64 // vertical gap between rows, or radial gap between rings
}

const (
	DefaultNodeSpacing = 140.0
	DefaultTierSpacing = 120.0
)

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = Tiered
	}
	if o.Tiers == "" {
		o.Tiers = AuthoredTiers
	}
	if o.NodeSpacing <= 0 {
		o.NodeSpacing = DefaultNodeSpacing
	}
	if o.TierSpacing <= 0 {
		o.TierSpacing = DefaultTierSpacing
	}
	return o
}

// -- Geometry --

// Rect is an axis-aligned box.
type Rect struct {
	X, Y, Width, Height float64
}

// ExpandedBy returns r grown by pad on every side.
func (r Rect) ExpandedBy(pad float64) Rect {
	return Rect{X: r.X - pad, Y: r.Y - pad, Width: r.Width + 2*pad, Height: r.Height + 2*pad}
}

// Bounds returns the smallest Rect containing every position. An empty map
// yields the zero Rect.
func Bounds(positions map[string]schemas.Position) Rect {
	if len(positions) == 0 {
		return Rect{}
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range positions {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, Width: maxX - minX, Height: maxY - minY}
}

// -- Layout --

// Compute positions every node of g.
func Compute(g *skillgraph.Graph, opts Options) (map[string]schemas.Position, error) {
	opts = opts.withDefaults()

	rank := make(map[string]int, g.Len())
	for i, id := range g.TopoOrder() {
		rank[id] = i
	}

	tiers := make(map[string]int, g.Len())
	for _, id := range g.IDs() {
		var (
			t   int
			err error
		)
		switch opts.Tiers {
		case AuthoredTiers:
			t, err = g.TierOf(id)
		case DerivedTiers:
			t, err = g.DepthOf(id)
		default:
			return nil, fmt.Errorf("layout: unknown tier source %q", opts.Tiers)
		}
		if err != nil {
			return nil, err
		}
		tiers[id] = t
	}

	group := func(id string) string {
		n, _ := g.Node(id)
		return n.SpecializationID()
	}
	return place(rowsOf(tiers, rank, group), opts)
}

// FromPrerequisites lays out the prerequisite-array form, deriving tiers by
// layering. A cycle is returned as an error.
func FromPrerequisites(prereqs map[string][]string, opts Options) (map[string]schemas.Position, error) {
	opts = opts.withDefaults()
	tiers, err := skillgraph.ComputeTiers(prereqs)
	if err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}
	// Ids sort lexically inside a row; the map carries no authored order.
	rank := make(map[string]int, len(tiers))
	ids := make([]string, 0, len(tiers))
	for id := range tiers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for i, id := range ids {
		rank[id] = i
	}
	return place(rowsOf(tiers, rank, func(string) string { return "" }), opts)
}

// ForTree lays out a raw tree document without building a Graph. Derived
// tiers come from inverting the connections.
func ForTree(data schemas.SkillTreeData, opts Options) (map[string]schemas.Position, error) {
	opts = opts.withDefaults()

	rank := make(map[string]int, len(data.Nodes))
	spec := make(map[string]string, len(data.Nodes))
	prereqs := make(map[string][]string, len(data.Nodes))
	for i, n := range data.Nodes {
		rank[n.ID] = i
		spec[n.ID] = n.SpecializationID()
		if _, ok := prereqs[n.ID]; !ok {
			prereqs[n.ID] = nil
		}
		for _, target := range n.Connections {
			prereqs[target] = append(prereqs[target], n.ID)
		}
	}
	for id := range prereqs {
		if _, ok := rank[id]; !ok {
			return nil, fmt.Errorf("layout: %w: connection to %s", skillgraph.ErrUnknownNode, id)
		}
	}

	var tiers map[string]int
	switch opts.Tiers {
	case AuthoredTiers:
		tiers = make(map[string]int, len(data.Nodes))
		for _, n := range data.Nodes {
			tiers[n.ID] = n.Tier
		}
	case DerivedTiers:
		var err error
		if tiers, err = skillgraph.ComputeTiers(prereqs); err != nil {
			return nil, fmt.Errorf("layout: %w", err)
		}
	default:
		return nil, fmt.Errorf("layout: unknown tier source %q", opts.Tiers)
	}
	return place(rowsOf(tiers, rank, func(id string) string { return spec[id] }), opts)
}

// Apply returns a copy of data with positions written onto its nodes.
// Nodes without an entry keep their authored position.
func Apply(data schemas.SkillTreeData, positions map[string]schemas.Position) schemas.SkillTreeData {
	out := data.Clone()
	for i := range out.Nodes {
		if p, ok := positions[out.Nodes[i].ID]; ok {
			out.Nodes[i].Position = p
		}
	}
	return out
}

// rowsOf groups ids by tier. Within a row nodes of one specialization sit
// together, then follow topological rank.
func rowsOf(tiers map[string]int, rank map[string]int, group func(string) string) [][]string {
	maxTier := 0
	for _, t := range tiers {
		if t > maxTier {
			maxTier = t
		}
	}
	rows := make([][]string, maxTier+1)
	for id, t := range tiers {
		rows[t] = append(rows[t], id)
	}
	for _, row := range rows {
		sort.Slice(row, func(i, j int) bool {
			gi, gj := group(row[i]), group(row[j])
			if gi != gj {
				return gi < gj
			}
			return rank[row[i]] < rank[row[j]]
		})
	}
	return rows
}

func place(rows [][]string, opts Options) (map[string]schemas.Position, error) {
	out := make(map[string]schemas.Position)
	switch opts.Mode {
	case Tiered:
		for tier, row := range rows {
			offset := float64(len(row)-1) / 2
			for i, id := range row {
				out[id] = schemas.Position{
					X: round2((float64(i) - offset) * opts.NodeSpacing),
					Y: round2(float64(tier) * opts.TierSpacing),
				}
			}
		}
	case Radial:
		for tier, row := range rows {
			radius := float64(tier) * opts.TierSpacing
			if radius == 0 && len(row) > 1 {
				radius = opts.TierSpacing / 2
			}
			for i, id := range row {
				// Start at twelve o'clock and go clockwise.
				angle := -math.Pi/2 + 2*math.Pi*float64(i)/float64(len(row))
				out[id] = schemas.Position{
					X: round2(radius * math.Cos(angle)),
					Y: round2(radius * math.Sin(angle)),
				}
			}
		}
	default:
		return nil, fmt.Errorf("layout: unknown mode %q", opts.Mode)
	}
	return out, nil
}

func round2(v float64) float64 {
	r := math.Round(v*100) / 100
	if r == 0 {
		return 0 // normalizes -0
	}
	return r
}
