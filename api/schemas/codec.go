package schemas

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// JSON is the codec shared by every package that reads or writes the wire
// documents.
var JSON = jsoniter.ConfigCompatibleWithStandardLibrary

// DecodeTree reads a SkillTreeData document.
func DecodeTree(r io.Reader) (SkillTreeData, error) {
	var tree SkillTreeData
	if err := JSON.NewDecoder(r).Decode(&tree); err != nil {
		return SkillTreeData{}, fmt.Errorf("failed to decode skill tree: %w", err)
	}
	return tree, nil
}

// DecodeProgress reads a PlayerProgress document and normalizes it.
func DecodeProgress(r io.Reader) (PlayerProgress, error) {
	var progress PlayerProgress
	if err := JSON.NewDecoder(r).Decode(&progress); err != nil {
		return PlayerProgress{}, fmt.Errorf("failed to decode player progress: %w", err)
	}
	progress.Normalize()
	return progress, nil
}

// ErrorEnvelope is the body returned by the API on failure.
type ErrorEnvelope struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}
