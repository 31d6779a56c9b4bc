package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/aretw0/arbor/pkg/domain"
)

// Renderer turns markdown into terminal output.
type Renderer func(markdown string) (string, error)

// SnapshotMarkdown renders a stored snapshot as a markdown document with one
// section per slice, in key order.
func SnapshotMarkdown(key string, snap *domain.Snapshot) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "# State `%s`\n\n", key)
	fmt.Fprintf(&b, "Schema version: **%d**\n\n", snap.Version)

	keys := make([]string, 0, len(snap.Slices))
	for k := range snap.Slices {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		b.WriteString("_No slices persisted._\n")
	}
	for _, k := range keys {
		data, err := json.MarshalIndent(snap.Slices[k], "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to encode slice %q: %w", k, err)
		}
		fmt.Fprintf(&b, "## %s\n\n```json\n%s\n```\n\n", k, data)
	}
	return b.String(), nil
}

// PrintSnapshot writes snap to w, rendered through render when it is not nil
// and as indented JSON otherwise.
func PrintSnapshot(w io.Writer, key string, snap *domain.Snapshot, render Renderer) error {
	if render == nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(snap)
	}

	md, err := SnapshotMarkdown(key, snap)
	if err != nil {
		return err
	}
	out, err := render(md)
	if err != nil {
		return fmt.Errorf("failed to render snapshot: %w", err)
	}
	_, err = io.WriteString(w, out)
	return err
}
