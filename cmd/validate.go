package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/skilltree/internal/observability"
	"github.com/xkilldash9x/skilltree/internal/skillgraph"
	"github.com/xkilldash9x/skilltree/internal/store"
)

func newValidateCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "validate [tree-file]",
		Short: "Checks a skill tree document and prints a validation report",
		Long: `Validate loads a skill tree document, checks its structure (ids, references,
cycles, the root node) and reports warnings such as orphans, unknown effect
types and malformed conditions. It exits non-zero when the tree has errors.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, formatText, formatJSON, formatYAML); err != nil {
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
			logger := observability.GetLogger()
			report := skillgraph.Validate(data, skillgraph.NewOptions(cfg.Tree(), logger))
			logger.Debug("Tree validated.", zap.String("path", path),
				zap.Int("errors", len(report.Errors)), zap.Int("warnings", len(report.Warnings)))

			out := cmd.OutOrStdout()
			switch format {
			case formatJSON:
				err = writeJSON(out, report)
			case formatYAML:
				err = writeYAML(out, report)
			default:
				err = writeReportText(out, report)
			}
			if err != nil {
				return err
			}
			if !report.Valid() {
				return fmt.Errorf("skill tree %s is invalid: %d error(s)", path, len(report.Errors))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", formatText, "output format: text, json or yaml")
	return cmd
}

func writeReportText(w io.Writer, r *skillgraph.Report) error {
	version := r.TreeVersion
	if version == "" {
		version = "(unversioned)"
	}
	if _, err := fmt.Fprintf(w, "Tree %s: %d nodes, %d error(s), %d warning(s)\n",
		version, r.NodeCount, len(r.Errors), len(r.Warnings)); err != nil {
		return err
	}
	for _, issue := range r.Errors {
		if _, err := fmt.Fprintf(w, "ERROR  %s\n", issue.Error()); err != nil {
			return err
		}
	}
	for _, issue := range r.Warnings {
		if _, err := fmt.Fprintf(w, "WARN   %s\n", issue.Error()); err != nil {
			return err
		}
	}
	return nil
}
