// Package render draws the skill tree as an SVG document and keeps node
// states in sync with the controller's pushes.
package render

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"sync"

	"github.com/beevik/etree"
	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/layout"
)

const (
	svgNamespace = "http://www.w3.org/2000/svg"
	defaultColor = "#95A5A6"
	padding      = 60.0
)

// Options configures an SVGRenderer.
type Options struct {
	Layout layout.Options
	// Indent is the number of spaces per level when serializing; zero writes compact output.
	Indent int
}

type nodeElems struct {
	group  *etree.Element
	circle *etree.Element
	base   colorful.Color
}

type edgeElem struct {
	source, target string
	line           *etree.Element
}

// SVGRenderer implements schemas.RenderAdapter. It is safe for concurrent use.
type SVGRenderer struct {
	mu     sync.Mutex
	opts   Options
	logger *zap.Logger

	doc      *etree.Document
	nodes    map[string]*nodeElems
	edges    []edgeElem
	statuses map[string]schemas.NodeStatus
	updates  int
}

// NewSVGRenderer returns a renderer with an empty document.
func NewSVGRenderer(opts Options, logger *zap.Logger) *SVGRenderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SVGRenderer{
		opts:     opts,
		logger:   logger.Named("render.svg"),
		nodes:    map[string]*nodeElems{},
		statuses: map[string]schemas.NodeStatus{},
	}
}

// LoadSkillTree rebuilds the document for tree.
func (r *SVGRenderer) LoadSkillTree(tree schemas.SkillTreeData, unlockedIDs, availableIDs []string) {
	positions, err := layout.ForTree(tree, r.opts.Layout)
	if err != nil {
		// Fall back to authored positions so the tree is still drawn.
		r.logger.Warn("Layout failed; using authored positions.", zap.Error(err))
		positions = make(map[string]schemas.Position, len(tree.Nodes))
		for _, n := range tree.Nodes {
			positions[n.ID] = n.Position
		}
	}

	palette := make(map[string]colorful.Color, len(tree.Specializations))
	for _, s := range tree.Specializations {
		c, err := colorful.Hex(s.Color)
		if err != nil {
			r.logger.Warn("Specialization color is not valid hex.", zap.String("specialization", s.ID), zap.String("color", s.Color))
			continue
		}
		palette[s.ID] = c
	}
	neutral, _ := colorful.Hex(defaultColor)

	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)
	svg := doc.CreateElement("svg")
	svg.CreateAttr("xmlns", svgNamespace)
	svg.CreateAttr("data-tree-version", tree.TreeVersion)
	box := layout.Bounds(positions).ExpandedBy(padding)
	svg.CreateAttr("viewBox", fmt.Sprintf("%s %s %s %s", num(box.X), num(box.Y), num(box.Width), num(box.Height)))

	edgeLayer := svg.CreateElement("g")
	edgeLayer.CreateAttr("class", "edges")
	nodeLayer := svg.CreateElement("g")
	nodeLayer.CreateAttr("class", "nodes")

	nodes := make(map[string]*nodeElems, len(tree.Nodes))
	var edges []edgeElem
	for _, n := range tree.Nodes {
		for _, target := range n.Connections {
			from, to := positions[n.ID], positions[target]
			line := edgeLayer.CreateElement("line")
			line.CreateAttr("x1", num(from.X))
			line.CreateAttr("y1", num(from.Y))
			line.CreateAttr("x2", num(to.X))
			line.CreateAttr("y2", num(to.Y))
			line.CreateAttr("data-source", n.ID)
			line.CreateAttr("data-target", target)
			edges = append(edges, edgeElem{source: n.ID, target: target, line: line})
		}

		base := neutral
		if c, ok := palette[n.SpecializationID()]; ok {
			base = c
		}
		pos := positions[n.ID]

		g := nodeLayer.CreateElement("g")
		g.CreateAttr("id", "node-"+n.ID)
		g.CreateAttr("data-id", n.ID)
		if spec := n.SpecializationID(); spec != "" {
			g.CreateAttr("data-specialization", spec)
		}
		g.CreateElement("title").SetText(n.Name)

		circle := g.CreateElement("circle")
		circle.CreateAttr("cx", num(pos.X))
		circle.CreateAttr("cy", num(pos.Y))
		circle.CreateAttr("r", num(radius(n.Visual.Size)))

		label := g.CreateElement("text")
		label.CreateAttr("x", num(pos.X))
		label.CreateAttr("y", num(pos.Y+radius(n.Visual.Size)+14))
		label.CreateAttr("text-anchor", "middle")
		label.SetText(n.Name)

		nodes[n.ID] = &nodeElems{group: g, circle: circle, base: base}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.doc = doc
	r.nodes = nodes
	r.edges = edges
	r.updates = 0
	r.applyLocked(unlockedIDs, availableIDs)
	r.logger.Debug("Skill tree drawn.", zap.Int("nodes", len(nodes)), zap.Int("edges", len(edges)))
}

// UpdateNodeStates restyles the existing document in place.
func (r *SVGRenderer) UpdateNodeStates(unlockedIDs, availableIDs []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		r.logger.Warn("Node state update received before a tree was loaded.")
		return
	}
	r.updates++
	r.applyLocked(unlockedIDs, availableIDs)
}

func (r *SVGRenderer) applyLocked(unlockedIDs, availableIDs []string) {
	statuses := make(map[string]schemas.NodeStatus, len(r.nodes))
	for id := range r.nodes {
		statuses[id] = schemas.StatusLocked
	}
	for _, id := range availableIDs {
		if _, ok := r.nodes[id]; ok {
			statuses[id] = schemas.StatusUnlockable
		}
	}
	for _, id := range unlockedIDs {
		if _, ok := r.nodes[id]; ok {
			statuses[id] = schemas.StatusUnlocked
		}
	}

	for id, el := range r.nodes {
		st := statuses[id]
		el.group.CreateAttr("class", "node node-"+string(st))
		el.group.CreateAttr("data-status", string(st))
		el.circle.CreateAttr("fill", fill(el.base, st))
		el.circle.CreateAttr("stroke", el.base.Hex())
	}
	for _, e := range r.edges {
		class := "edge"
		if statuses[e.source] == schemas.StatusUnlocked {
			class += " edge-open"
			if statuses[e.target] == schemas.StatusUnlocked {
				class += " edge-complete"
			}
		}
		e.line.CreateAttr("class", class)
	}
	r.statuses = statuses
}

// fill derives the node fill: the full color when unlocked, a lighter tint
// when available and a muted shade when locked.
func fill(base colorful.Color, st schemas.NodeStatus) string {
	switch st {
	case schemas.StatusUnlocked:
		return base.Hex()
	case schemas.StatusUnlockable:
		return base.BlendLab(colorful.Color{R: 1, G: 1, B: 1}, 0.45).Clamped().Hex()
	default:
		h, _, _ := base.Hcl()
		return colorful.Hcl(h, 0.05, 0.35).Clamped().Hex()
	}
}

func radius(size schemas.NodeSize) float64 {
	switch size {
	case schemas.NodeSizeCore:
		return 36
	case schemas.NodeSizeMajor:
		return 26
	case schemas.NodeSizeConnector:
		return 10
	default:
		return 18
	}
}

func num(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Status returns the state last applied to a node.
func (r *SVGRenderer) Status(id string) (schemas.NodeStatus, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.statuses[id]
	return st, ok
}

// Fill returns the fill color currently drawn for a node.
func (r *SVGRenderer) Fill(id string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.nodes[id]
	if !ok {
		return "", false
	}
	return el.circle.SelectAttrValue("fill", ""), true
}

// NodeIDs returns the drawn node ids, sorted.
func (r *SVGRenderer) NodeIDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.nodes))
	for id := range r.nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Updates counts UpdateNodeStates calls since the last load.
func (r *SVGRenderer) Updates() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.updates
}

// WriteTo serializes the current document.
func (r *SVGRenderer) WriteTo(w io.Writer) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return 0, fmt.Errorf("render: no tree loaded")
	}
	doc := r.doc.Copy()
	if r.opts.Indent > 0 {
		doc.Indent(r.opts.Indent)
	}
	return doc.WriteTo(w)
}

// String serializes the current document, or returns "" when none is loaded.
func (r *SVGRenderer) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.doc == nil {
		return ""
	}
	s, err := r.doc.WriteToString()
	if err != nil {
		return ""
	}
	return s
}
