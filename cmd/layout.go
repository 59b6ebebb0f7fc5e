package cmd

import (
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/skilltree/internal/layout"
	"github.com/xkilldash9x/skilltree/internal/observability"
	"github.com/xkilldash9x/skilltree/internal/render"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
	"github.com/xkilldash9x/skilltree/internal/store"
)

func newLayoutCmd() *cobra.Command {
	var (
		format string
		opts   layout.Options
		mode   string
		tiers  string
	)

	cmd := &cobra.Command{
		Use:   "layout [tree-file]",
		Short: "Computes node positions and prints them as JSON or draws the tree as SVG",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, formatJSON, formatSVG); err != nil {
				return err
			}
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			path, err := treePath(cfg, args)
			if err != nil {
				return err
			}
			data, err := store.FileTree{Path: path}.FetchTree(cmd.Context())
			if err != nil {
				return err
			}
			opts.Mode = layout.Mode(mode)
			opts.Tiers = layout.TierSource(tiers)

			if format == formatJSON {
				positions, err := layout.ForTree(data, opts)
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), positions)
			}

			// The SVG shows a fresh player: only the root unlocked.
			logger := observability.GetLogger()
			graph, _, err := skillgraph.Load(data, skillgraph.NewOptions(cfg.Tree(), logger))
			if err != nil {
				return err
			}
			if _, err := layout.Compute(graph, opts); err != nil {
				return err
			}
			root := graph.Root()
			r := render.NewSVGRenderer(render.Options{Layout: opts, Indent: 2}, logger)
			r.LoadSkillTree(graph.Data(), []string{root}, graph.Unlockable(map[string]bool{root: true}))
			_, err = r.WriteTo(cmd.OutOrStdout())
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatJSON, "output format: json or svg")
	cmd.Flags().StringVar(&mode, "mode", string(layout.Tiered), "arrangement: tiered or radial")
	cmd.Flags().StringVar(&tiers, "tiers", string(layout.AuthoredTiers), "tier source: authored or derived")
	cmd.Flags().Float64Var(&opts.NodeSpacing, "node-spacing", layout.DefaultNodeSpacing, "gap between nodes in a row")
	cmd.Flags().Float64Var(&opts.TierSpacing, "tier-spacing", layout.DefaultTierSpacing, "gap between tiers")
	return cmd
}
