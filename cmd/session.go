package cmd

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/condition"
	"github.com/xkilldash9x/skilltree/internal/controller"
	"github.com/xkilldash9x/skilltree/internal/observability"
	"github.com/xkilldash9x/skilltree/internal/service"
)

// withSession builds the session components, runs fn and shuts them down.
func withSession(ctx context.Context, factory service.ComponentFactory, fn func(*service.Components) error) error {
	cfg, err := getConfigFromContext(ctx)
	if err != nil {
		return err
	}
	components, err := factory.Create(ctx, cfg, observability.GetLogger())
	if err != nil {
		return err
	}
	defer components.Shutdown()
	return fn(components)
}

// -- status --

type nodeRow struct {
	ID             string             `json:"id"`
	Name           string             `json:"name"`
	Tier           int                `json:"tier"`
	Specialization string             `json:"specialization,omitempty"`
	Status         schemas.NodeStatus `json:"status"`
	Cost           schemas.Cost       `json:"cost"`
}

type statusView struct {
	TreeVersion string                 `json:"tree_version"`
	Progress    schemas.PlayerProgress `json:"progress"`
	Ranks       map[string]string      `json:"ranks"`
	Nodes       []nodeRow              `json:"nodes"`
}

func newStatusCmd(deps dependencies) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Shows the player's currencies and the state of every node",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, formatText, formatJSON); err != nil {
				return err
			}
			return withSession(cmd.Context(), deps.factory, func(c *service.Components) error {
				view := buildStatus(c.Controller)
				if format == formatJSON {
					return writeJSON(cmd.OutOrStdout(), view)
				}
				return writeStatusText(cmd.OutOrStdout(), view)
			})
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text or json")
	return cmd
}

func buildStatus(ctrl *controller.Controller) statusView {
	graph := ctrl.Graph()
	progress := ctrl.Progress()
	statuses := ctrl.Statuses()

	view := statusView{
		TreeVersion: graph.Version(),
		Progress:    progress,
		Ranks:       map[string]string{},
	}
	for _, s := range graph.Specializations() {
		rank, err := graph.SpecializationRank(s.ID, progress.SpecializationProgress[s.ID])
		if err == nil {
			view.Ranks[s.ID] = string(rank)
		}
	}
	for _, id := range graph.TopoOrder() {
		n, _ := graph.Node(id)
		view.Nodes = append(view.Nodes, nodeRow{
			ID:             n.ID,
			Name:           n.Name,
			Tier:           n.Tier,
			Specialization: n.SpecializationID(),
			Status:         statuses[id],
			Cost:           n.Cost,
		})
	}
	return view
}

func writeStatusText(w io.Writer, v statusView) error {
	fmt.Fprintf(w, "Tree %s\n", v.TreeVersion)
	fmt.Fprintf(w, "Reputation: %d   Skill points: %d\n", v.Progress.Reputation, v.Progress.SkillPointsAvailable)

	specs := make([]string, 0, len(v.Ranks))
	for id := range v.Ranks {
		specs = append(specs, id)
	}
	sort.Strings(specs)
	for _, id := range specs {
		fmt.Fprintf(w, "  %-16s %d unlocked (%s)\n", id, v.Progress.SpecializationProgress[id], v.Ranks[id])
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%-24s %-4s %-11s %s\n", "NODE", "TIER", "STATUS", "COST")
	for _, n := range v.Nodes {
		cost := "-"
		if n.Cost.Reputation > 0 || n.Cost.SkillPoints > 0 {
			cost = fmt.Sprintf("%d rep, %d sp", n.Cost.Reputation, n.Cost.SkillPoints)
		}
		if _, err := fmt.Fprintf(w, "%-24s %-4d %-11s %s\n", n.ID, n.Tier, n.Status, cost); err != nil {
			return err
		}
	}
	return nil
}

// -- unlock --

func newUnlockCmd(deps dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "unlock <node-id>",
		Short: "Unlocks a node, paying its cost, and saves the new progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeID := args[0]
			return withSession(cmd.Context(), deps.factory, func(c *service.Components) error {
				before := c.Controller.Available()
				progress, err := c.Controller.UnlockNode(cmd.Context(), nodeID)
				if err != nil {
					observability.GetLogger().Debug("Unlock rejected.", zap.String("node_id", nodeID), zap.Error(err))
					return fmt.Errorf("unlock %s: %w", nodeID, err)
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Unlocked %s. Reputation: %d, skill points: %d\n",
					nodeID, progress.Reputation, progress.SkillPointsAvailable)
				if opened := newlyAvailable(before, c.Controller.Available()); len(opened) > 0 {
					fmt.Fprintf(out, "Now available: %s\n", strings.Join(opened, ", "))
				}
				return nil
			})
		},
	}
}

func newlyAvailable(before, after []string) []string {
	seen := make(map[string]bool, len(before))
	for _, id := range before {
		seen[id] = true
	}
	var out []string
	for _, id := range after {
		if !seen[id] {
			out = append(out, id)
		}
	}
	return out
}

// -- bonuses --

func newBonusesCmd(deps dependencies) *cobra.Command {
	var (
		when []string
		name string
	)
	cmd := &cobra.Command{
		Use:   "bonuses",
		Short: "Prints the bonuses granted by the unlocked skills",
		Long: `Bonuses prints the aggregated bonus record. Conditional effects only count
when --when supplies matching context, e.g. --when question.category=dosimetry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, err := parseConditionContext(when)
			if err != nil {
				return err
			}
			return withSession(cmd.Context(), deps.factory, func(c *service.Components) error {
				if name != "" {
					v, err := c.Controller.Bonus(name, ctx)
					if err != nil {
						return err
					}
					_, err = fmt.Fprintln(cmd.OutOrStdout(), v)
					return err
				}
				return writeJSON(cmd.OutOrStdout(), c.Controller.BonusesFor(ctx))
			})
		},
	}
	cmd.Flags().StringArrayVar(&when, "when", nil, "condition context as path=value; repeatable")
	cmd.Flags().StringVar(&name, "name", "", "print a single bonus, e.g. insightGain")
	return cmd
}

// parseConditionContext turns path=value pairs into a nested context.
// Values that parse as numbers or booleans keep that type.
func parseConditionContext(pairs []string) (condition.Context, error) {
	ctx := condition.Context{}
	for _, pair := range pairs {
		path, raw, ok := strings.Cut(pair, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --when %q (want path=value)", pair)
		}
		keys := strings.Split(path, ".")
		node := map[string]any(ctx)
		for _, k := range keys[:len(keys)-1] {
			next, ok := node[k].(map[string]any)
			if !ok {
				next = map[string]any{}
				node[k] = next
			}
			node = next
		}
		node[keys[len(keys)-1]] = contextValue(raw)
	}
	return ctx, nil
}

func contextValue(raw string) any {
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return f
	}
	switch raw {
	case "true":
		return true
	case "false":
		return false
	}
	return raw
}
