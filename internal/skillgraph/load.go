package skillgraph

import (
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/condition"
	"github.com/xkilldash9x/skilltree/internal/config"
)

// DefaultRootNodeID is the designated root when none is configured.
const DefaultRootNodeID = "core"

var colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// Options tune validation. Zero cost limits disable the excessive cost warning.
type Options struct {
	RootNodeID        string
	MaxReputationCost int
	MaxSkillPointCost int
	Logger            *zap.Logger
}

// NewOptions builds Options from the tree configuration.
func NewOptions(cfg config.TreeConfig, logger *zap.Logger) Options {
	return Options{
		RootNodeID:        cfg.RootNodeID,
		MaxReputationCost: cfg.MaxReputationCost,
		MaxSkillPointCost: cfg.MaxSkillPointCost,
		Logger:            logger,
	}
}

// Load validates a tree document and builds its graph. Any validation error
// fails the whole load: the graph is nil and err wraps ErrInvalidTree. The
// report is always returned and also carries non-fatal warnings.
func Load(data schemas.SkillTreeData, opts Options) (*Graph, *Report, error) {
	if opts.RootNodeID == "" {
		opts.RootNodeID = DefaultRootNodeID
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("skillgraph")

	l := &loader{
		data:   data.Clone(),
		opts:   opts,
		report: newReport(data.TreeVersion, len(data.Nodes)),
	}
	g := l.run()

	for _, w := range l.report.Warnings {
		logger.Warn("Skill tree validation warning.", zap.String("issue", w.Error()))
	}
	if err := l.report.Err(); err != nil {
		logger.Error("Skill tree failed validation.",
			zap.String("tree_version", data.TreeVersion),
			zap.Int("errors", len(l.report.Errors)),
			zap.Error(err))
		return nil, l.report, err
	}
	logger.Info("Skill tree loaded.",
		zap.String("tree_version", data.TreeVersion),
		zap.Int("nodes", len(g.order)),
		zap.Int("specializations", len(g.specOrder)),
		zap.Int("warnings", len(l.report.Warnings)))
	return g, l.report, nil
}

// Validate runs the load checks and returns only the report.
func Validate(data schemas.SkillTreeData, opts Options) *Report {
	_, report, _ := Load(data, opts)
	return report
}

type loader struct {
	data   schemas.SkillTreeData
	opts   Options
	report *Report
}

func (l *loader) run() *Graph {
	g := &Graph{
		version:    l.data.TreeVersion,
		root:       l.opts.RootNodeID,
		nodes:      make(map[string]*schemas.SkillNode, len(l.data.Nodes)),
		specs:      make(map[string]schemas.Specialization, len(l.data.Specializations)),
		prereqs:    make(map[string][]string, len(l.data.Nodes)),
		dependents: make(map[string][]string, len(l.data.Nodes)),
	}

	if strings.TrimSpace(l.data.TreeVersion) == "" {
		l.report.warnf(CodeMissingVersion, "", "tree_version", "tree_version is empty")
	}

	l.indexSpecializations(g)
	l.indexNodes(g)
	l.checkNodes(g)
	l.buildEdges(g)
	l.checkTopLevelConnections(g)

	if _, ok := g.nodes[g.root]; !ok {
		issue := l.report.errorf(CodeMissingRoot, g.root, "", "designated root node does not exist")
		issue.Suggestion = suggest(g.root, g.order)
	}

	l.orderAndTier(g)
	l.checkWarnings(g)
	return g
}

func (l *loader) indexSpecializations(g *Graph) {
	for i, spec := range l.data.Specializations {
		if spec.ID == "" {
			l.report.errorf(CodeMissingField, "", "specializations[].id", "specialization at index %d has no id", i)
			continue
		}
		if _, dup := g.specs[spec.ID]; dup {
			l.report.errorf(CodeDuplicateID, spec.ID, "specializations[].id", "specialization id is used more than once")
			continue
		}
		if spec.Name == "" {
			l.report.errorf(CodeMissingField, spec.ID, "name", "specialization has no name")
		}
		if !colorPattern.MatchString(spec.Color) {
			l.report.errorf(CodeInvalidColor, spec.ID, "color", "color %q is not a #RRGGBB hex string", spec.Color)
		}
		if spec.Threshold < 0 || spec.MasteryThreshold < 0 {
			l.report.errorf(CodeInvalidValue, spec.ID, "threshold", "thresholds must not be negative")
		} else if spec.MasteryThreshold > 0 && spec.MasteryThreshold < spec.Threshold {
			l.report.warnf(CodeThresholdOrder, spec.ID, "mastery_threshold",
				"mastery threshold %d is below the specialist threshold %d", spec.MasteryThreshold, spec.Threshold)
		}
		g.specs[spec.ID] = spec
		g.specOrder = append(g.specOrder, spec.ID)
	}
}

func (l *loader) indexNodes(g *Graph) {
	for i := range l.data.Nodes {
		node := &l.data.Nodes[i]
		if node.ID == "" {
			l.report.errorf(CodeMissingField, "", "nodes[].id", "node at index %d has no id", i)
			continue
		}
		if _, dup := g.nodes[node.ID]; dup {
			l.report.errorf(CodeDuplicateID, node.ID, "id", "node id is used more than once")
			continue
		}
		g.nodes[node.ID] = node
		g.order = append(g.order, node.ID)
	}
}

func (l *loader) checkNodes(g *Graph) {
	for _, id := range g.order {
		node := g.nodes[id]
		if node.Name == "" {
			l.report.errorf(CodeMissingField, id, "name", "node has no name")
		}
		if node.Tier < 0 {
			l.report.errorf(CodeInvalidValue, id, "tier", "tier %d is negative", node.Tier)
		}
		if node.Cost.Reputation < 0 || node.Cost.SkillPoints < 0 {
			l.report.errorf(CodeInvalidValue, id, "cost", "costs must not be negative")
		}
		if node.Visual.Size != "" && !node.Visual.Size.Valid() {
			l.report.errorf(CodeInvalidValue, id, "visual.size", "size %q is not one of core, major, minor, connector", node.Visual.Size)
		}
		if spec := node.SpecializationID(); spec != "" {
			if _, ok := g.specs[spec]; !ok {
				issue := l.report.errorf(CodeUnknownSpec, id, "specialization", "specialization %q does not exist", spec)
				issue.Suggestion = suggest(spec, g.specOrder)
			}
		}
		for j, eff := range node.Effects {
			switch {
			case eff.Type == "":
				l.report.errorf(CodeMissingField, id, "effects[].type", "effect at index %d has no type", j)
			case !eff.Type.IsKnown():
				l.report.warnf(CodeUnknownEffect, id, "effects[].type", "effect type %q is not known and will be ignored", eff.Type)
			}
			if eff.Condition != "" {
				if _, err := condition.Parse(eff.Condition); err != nil {
					l.report.warnf(CodeMalformedCondition, id, "effects[].condition", "%v; the effect will never apply", err)
				}
			}
		}
	}
}

// buildEdges validates node.connections and builds the prerequisite index.
func (l *loader) buildEdges(g *Graph) {
	for _, id := range g.order {
		node := g.nodes[id]
		seen := make(map[string]bool, len(node.Connections))
		for _, target := range node.Connections {
			switch {
			case target == id:
				l.report.errorf(CodeSelfLoop, id, "connections", "node connects to itself")
				continue
			case seen[target]:
				l.report.warnf(CodeDuplicateEdge, id, "connections", "connection to %q is listed more than once", target)
				continue
			}
			seen[target] = true
			if _, ok := g.nodes[target]; !ok {
				issue := l.report.errorf(CodeDanglingConnection, id, "connections", "connection target %q does not exist", target)
				issue.Suggestion = suggest(target, g.order)
				continue
			}
			g.dependents[id] = append(g.dependents[id], target)
			g.prereqs[target] = append(g.prereqs[target], id)
		}
	}
	for id := range g.prereqs {
		sort.Strings(g.prereqs[id])
	}
}

// checkTopLevelConnections verifies that the optional edge array describes
// exactly the edges of node.connections, which stay authoritative.
func (l *loader) checkTopLevelConnections(g *Graph) {
	if len(l.data.Connections) == 0 {
		return
	}
	listed := make(map[[2]string]bool, len(l.data.Connections))
	for _, c := range l.data.Connections {
		if _, ok := g.nodes[c.Source]; !ok {
			issue := l.report.errorf(CodeDanglingConnection, c.Source, "connections[].source", "edge source %q does not exist", c.Source)
			issue.Suggestion = suggest(c.Source, g.order)
			continue
		}
		if _, ok := g.nodes[c.Target]; !ok {
			issue := l.report.errorf(CodeDanglingConnection, c.Source, "connections[].target", "edge target %q does not exist", c.Target)
			issue.Suggestion = suggest(c.Target, g.order)
			continue
		}
		listed[[2]string{c.Source, c.Target}] = true
		if !contains(g.dependents[c.Source], c.Target) {
			l.report.errorf(CodeConnectionMismatch, c.Source, "connections",
				"edge %s -> %s is not listed in the node's connections", c.Source, c.Target)
		}
	}
	for _, id := range g.order {
		for _, target := range g.dependents[id] {
			if !listed[[2]string{id, target}] {
				l.report.errorf(CodeConnectionMismatch, id, "connections",
					"node connection %s -> %s is missing from the top-level connections", id, target)
			}
		}
	}
}

func (l *loader) orderAndTier(g *Graph) {
	sorted, stuck := topoSort(g.order, g.prereqs, g.dependents)
	if len(stuck) > 0 {
		l.report.errorf(CodeCycle, stuck[0], "connections",
			"prerequisite cycle through %s", strings.Join(stuck, ", "))
		return
	}
	g.topo = sorted

	g.depth = make(map[string]int, len(sorted))
	for _, id := range sorted {
		d := 0
		for _, p := range g.prereqs[id] {
			if g.depth[p]+1 > d {
				d = g.depth[p] + 1
			}
		}
		g.depth[id] = d
	}
}

func (l *loader) checkWarnings(g *Graph) {
	positions := make(map[schemas.Position]string)
	for _, id := range g.order {
		node := g.nodes[id]

		if id != g.root && len(g.prereqs[id]) == 0 {
			l.report.warnf(CodeOrphan, id, "", "no node connects to this node, so it can never become unlockable")
		}

		if node.Position != (schemas.Position{}) {
			if other, ok := positions[node.Position]; ok {
				l.report.warnf(CodeDuplicatePosition, id, "position",
					"shares position (%g, %g) with %s", node.Position.X, node.Position.Y, other)
			} else {
				positions[node.Position] = id
			}
		}

		if l.opts.MaxReputationCost > 0 && node.Cost.Reputation > l.opts.MaxReputationCost {
			l.report.warnf(CodeExcessiveCost, id, "cost.reputation",
				"reputation cost %d exceeds %d", node.Cost.Reputation, l.opts.MaxReputationCost)
		}
		if l.opts.MaxSkillPointCost > 0 && node.Cost.SkillPoints > l.opts.MaxSkillPointCost {
			l.report.warnf(CodeExcessiveCost, id, "cost.skill_points",
				"skill point cost %d exceeds %d", node.Cost.SkillPoints, l.opts.MaxSkillPointCost)
		}

		for _, p := range g.prereqs[id] {
			if pre := g.nodes[p]; pre.Tier >= node.Tier {
				l.report.warnf(CodeTierOrder, id, "tier",
					"tier %d is not above prerequisite %s (tier %d)", node.Tier, p, pre.Tier)
				break
			}
		}
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
