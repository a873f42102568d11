package command

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"
)

// Stable catalog ids. They outlive the concrete command types, so logging and
// coalescing policy keyed on them keep working when implementations change.
const (
	ActivateTab       Kind = "ActivateTab"
	CloseTab          Kind = "CloseTab"
	CloseGroup        Kind = "CloseGroup"
	FloatGroup        Kind = "FloatGroup"
	DockToTarget      Kind = "DockToTarget"
	SetSplitterRatio  Kind = "SetSplitterRatio"
	ToggleAutoHide    Kind = "ToggleAutoHide"
	SaveLayout        Kind = "SaveLayout"
	LoadLayout        Kind = "LoadLayout"
	ResetLayout       Kind = "ResetLayout"
	DragPreviewBegin  Kind = "DragPreviewBegin"
	DragPreviewUpdate Kind = "DragPreviewUpdate"
	DragPreviewCommit Kind = "DragPreviewCommit"
	DragPreviewCancel Kind = "DragPreviewCancel"
)

var catalog = []Kind{
	ActivateTab,
	CloseTab,
	CloseGroup,
	FloatGroup,
	DockToTarget,
	SetSplitterRatio,
	ToggleAutoHide,
	SaveLayout,
	LoadLayout,
	ResetLayout,
	DragPreviewBegin,
	DragPreviewUpdate,
	DragPreviewCommit,
	DragPreviewCancel,
}

// highFrequency is an allow-list: only continuous-input streams belong here.
var highFrequency = map[Kind]bool{
	SetSplitterRatio:  true,
	DragPreviewUpdate: true,
}

// Kinds returns the catalog in declaration order.
func Kinds() []Kind {
	out := make([]Kind, len(catalog))
	copy(out, catalog)
	return out
}

// Known reports whether id is a catalog entry.
func Known(id Kind) bool {
	for _, k := range catalog {
		if k == id {
			return true
		}
	}
	return false
}

// IsHighFrequency reports whether id names a continuous-input stream
// (splitter drags, drag-preview updates). Unknown ids are not high frequency.
func IsHighFrequency(id Kind) (bool, error) {
	if id == "" {
		return false, missing("id")
	}
	return highFrequency[id], nil
}

// DebugName returns id when set, otherwise a stable name derived from the
// command itself. It is for logs only and never affects dispatch.
func DebugName(cmd Command, id Kind) string {
	if id != "" {
		return string(id)
	}
	if IsNil(cmd) {
		return "<nil>"
	}
	if k := cmd.Kind(); k != "" {
		return string(k)
	}
	name := strings.TrimLeft(fmt.Sprintf("%T", cmd), "*")
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

// ParseKind resolves user input such as "set-splitter-ratio" or
// "activatetab" to a catalog id. Unknown input yields an error with the
// closest catalog entry as a suggestion.
func ParseKind(s string) (Kind, error) {
	want := normalize(s)
	if want == "" {
		return "", missing("kind")
	}
	for _, k := range catalog {
		if normalize(string(k)) == want {
			return k, nil
		}
	}
	if best, ok := Suggest(s); ok {
		return "", fmt.Errorf("unknown command kind %q (did you mean %s?)", s, best)
	}
	return "", fmt.Errorf("unknown command kind %q", s)
}

// Suggest returns the catalog entry closest to s, if any is reasonably close.
func Suggest(s string) (Kind, bool) {
	want := normalize(s)
	if want == "" {
		return "", false
	}
	var (
		best     Kind
		bestDist = -1
	)
	for _, k := range catalog {
		d := levenshtein.ComputeDistance(want, normalize(string(k)))
		if bestDist < 0 || d < bestDist {
			best, bestDist = k, d
		}
	}
	// Anything further than half the input away is noise.
	if bestDist < 0 || bestDist > len(want)/2 {
		return "", false
	}
	return best, true
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "", "_", "", " ", "", ":", "").Replace(s)
}
