package dock

import "github.com/dayuer/dockbus/internal/command"

// One struct per catalog kind. Fields carry JSON tags so remote producers can
// submit them through Decode.

type ActivateTab struct {
	Group string `json:"group"`
	Tab   string `json:"tab"`
}

type CloseTab struct {
	Group string `json:"group"`
	Tab   string `json:"tab"`
}

type CloseGroup struct {
	Group string `json:"group"`
}

type FloatGroup struct {
	Group string `json:"group"`
}

// DockToTarget moves Panel into or beside the Target group.
type DockToTarget struct {
	Panel  string `json:"panel"`
	Target string `json:"target"`
	Zone   Zone   `json:"zone"`
}

// SetSplitterRatio is high-frequency: a drag on a splitter emits one per frame
// and the bus keeps only the newest.
type SetSplitterRatio struct {
	Splitter string  `json:"splitter"`
	Ratio    float64 `json:"ratio"`
}

type ToggleAutoHide struct {
	Group string `json:"group"`
}

type SaveLayout struct {
	Name string `json:"name"`
}

type LoadLayout struct {
	Name string `json:"name"`
}

// ResetLayout rebuilds the default layout from the panel registry.
type ResetLayout struct{}

type DragPreviewBegin struct {
	Panel string `json:"panel"`
}

type DragPreviewUpdate struct {
	Target string `json:"target"`
	Zone   Zone   `json:"zone"`
}

type DragPreviewCommit struct{}

type DragPreviewCancel struct{}

func (ActivateTab) Kind() command.Kind       { return command.ActivateTab }
func (CloseTab) Kind() command.Kind          { return command.CloseTab }
func (CloseGroup) Kind() command.Kind        { return command.CloseGroup }
func (FloatGroup) Kind() command.Kind        { return command.FloatGroup }
func (DockToTarget) Kind() command.Kind      { return command.DockToTarget }
func (SetSplitterRatio) Kind() command.Kind  { return command.SetSplitterRatio }
func (ToggleAutoHide) Kind() command.Kind    { return command.ToggleAutoHide }
func (SaveLayout) Kind() command.Kind        { return command.SaveLayout }
func (LoadLayout) Kind() command.Kind        { return command.LoadLayout }
func (ResetLayout) Kind() command.Kind       { return command.ResetLayout }
func (DragPreviewBegin) Kind() command.Kind  { return command.DragPreviewBegin }
func (DragPreviewUpdate) Kind() command.Kind { return command.DragPreviewUpdate }
func (DragPreviewCommit) Kind() command.Kind { return command.DragPreviewCommit }
func (DragPreviewCancel) Kind() command.Kind { return command.DragPreviewCancel }
