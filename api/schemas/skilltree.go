package schemas

// NodeSize is the visual weight of a node in the rendered tree.
type NodeSize string

const (
	NodeSizeCore      NodeSize = "core"
	NodeSizeMajor     NodeSize = "major"
	NodeSizeMinor     NodeSize = "minor"
	NodeSizeConnector NodeSize = "connector"
)

// Valid reports whether s is one of the known node sizes.
func (s NodeSize) Valid() bool {
	switch s {
	case NodeSizeCore, NodeSizeMajor, NodeSizeMinor, NodeSizeConnector:
		return true
	default:
		return false
	}
}

// NodeStatus is the client-visible state of a node. It is never stored on the
// node itself, it is derived from the player's progress on demand.
//
// There are no loadout slots: an unlocked skill always contributes its
// effects, so StatusUnlocked also means active.
type NodeStatus string

const (
	StatusLocked     NodeStatus = "locked"
	StatusUnlockable NodeStatus = "unlockable"
	StatusUnlocked   NodeStatus = "unlocked"
)

// Position is the layout coordinate of a node. It is derived by the layout
// adapter and carries no meaning for availability.
type Position struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Cost is the price of unlocking a node, in both currencies.
type Cost struct {
	Reputation  int `json:"reputation" yaml:"reputation"`
	SkillPoints int `json:"skill_points" yaml:"skill_points"`
}

// Visual holds presentation hints for the render adapter.
type Visual struct {
	Size NodeSize `json:"size" yaml:"size"`
	Icon string   `json:"icon" yaml:"icon"`
}

// SkillNode is a single unlockable skill.
//
// Connections are outgoing "unlocks" edges: if A lists B, then A is a
// prerequisite of B. Prerequisites are never authored directly.
type SkillNode struct {
	ID             string   `json:"id" yaml:"id"`
	Name           string   `json:"name" yaml:"name"`
	Tier           int      `json:"tier" yaml:"tier"`
	Specialization *string  `json:"specialization" yaml:"specialization"`
	Description    string   `json:"description" yaml:"description"`
	Effects        []Effect `json:"effects" yaml:"effects"`
	Position       Position `json:"position" yaml:"position"`
	Connections    []string `json:"connections" yaml:"connections"`
	Cost           Cost     `json:"cost" yaml:"cost"`
	Visual         Visual   `json:"visual" yaml:"visual"`
}

// SpecializationID returns the node's specialization, or "" when it has none.
func (n SkillNode) SpecializationID() string {
	if n.Specialization == nil {
		return ""
	}
	return *n.Specialization
}

// Specialization is a thematic grouping of nodes with its own unlock-count thresholds.
type Specialization struct {
	ID               string `json:"id" yaml:"id"`
	Name             string `json:"name" yaml:"name"`
	Description      string `json:"description" yaml:"description"`
	Color            string `json:"color" yaml:"color"`
	Threshold        int    `json:"threshold" yaml:"threshold"`
	MasteryThreshold int    `json:"mastery_threshold" yaml:"mastery_threshold"`
}

// Connection is the denormalized edge representation found at the top level
// of some tree documents. node.connections stays authoritative.
type Connection struct {
	Source string `json:"source" yaml:"source"`
	Target string `json:"target" yaml:"target"`
}

// SkillTreeData is the document served by GET /api/skill-tree.
type SkillTreeData struct {
	TreeVersion     string           `json:"tree_version" yaml:"tree_version"`
	Specializations []Specialization `json:"specializations" yaml:"specializations"`
	Nodes           []SkillNode      `json:"nodes" yaml:"nodes"`
	Connections     []Connection     `json:"connections,omitempty" yaml:"connections,omitempty"`
}

// Clone returns a deep copy of the tree so render code can never mutate the
// controller's copy.
func (t SkillTreeData) Clone() SkillTreeData {
	out := SkillTreeData{
		TreeVersion:     t.TreeVersion,
		Specializations: append([]Specialization(nil), t.Specializations...),
		Connections:     append([]Connection(nil), t.Connections...),
		Nodes:           make([]SkillNode, len(t.Nodes)),
	}
	for i, n := range t.Nodes {
		c := n
		if n.Specialization != nil {
			spec := *n.Specialization
			c.Specialization = &spec
		}
		c.Effects = append([]Effect(nil), n.Effects...)
		c.Connections = append([]string(nil), n.Connections...)
		out.Nodes[i] = c
	}
	return out
}

// ItemEffect is the effect payload of an item returned by GET /api/item/{id}.
type ItemEffect struct {
	Type  EffectType  `json:"type"`
	Value EffectValue `json:"value"`
}

// Item is consumed by effect-driven reward flows.
type Item struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Effect      ItemEffect `json:"effect"`
}
