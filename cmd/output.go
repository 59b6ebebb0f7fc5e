package cmd

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/xkilldash9x/skilltree/api/schemas"
	"github.com/xkilldash9x/skilltree/internal/config"
)

const (
	formatText = "text"
	formatJSON = "json"
	formatYAML = "yaml"
	formatSVG  = "svg"
)

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q (want one of %v)", format, allowed)
}

func writeJSON(w io.Writer, v any) error {
	data, err := schemas.JSON.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return enc.Close()
}

// treePath picks the positional tree argument over the configured path.
func treePath(cfg config.Interface, args []string) (string, error) {
	if len(args) > 0 {
		return args[0], nil
	}
	if p := cfg.Tree().Path; p != "" {
		return p, nil
	}
	return "", fmt.Errorf("no skill tree given (pass a file, --tree or set tree.path)")
}
