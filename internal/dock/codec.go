package dock

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/dayuer/dockbus/internal/command"
)

// Envelope is the wire form of a command: {"kind": "...", "args": {...}}.
type Envelope struct {
	Kind string          `json:"kind" yaml:"kind"`
	Args json.RawMessage `json:"args,omitempty" yaml:"-"`
}

// New returns a zero command of the given kind.
func New(kind command.Kind) (command.Command, error) {
	switch kind {
	case command.ActivateTab:
		return &ActivateTab{}, nil
	case command.CloseTab:
		return &CloseTab{}, nil
	case command.CloseGroup:
		return &CloseGroup{}, nil
	case command.FloatGroup:
		return &FloatGroup{}, nil
	case command.DockToTarget:
		return &DockToTarget{}, nil
	case command.SetSplitterRatio:
		return &SetSplitterRatio{}, nil
	case command.ToggleAutoHide:
		return &ToggleAutoHide{}, nil
	case command.SaveLayout:
		return &SaveLayout{}, nil
	case command.LoadLayout:
		return &LoadLayout{}, nil
	case command.ResetLayout:
		return &ResetLayout{}, nil
	case command.DragPreviewBegin:
		return &DragPreviewBegin{}, nil
	case command.DragPreviewUpdate:
		return &DragPreviewUpdate{}, nil
	case command.DragPreviewCommit:
		return &DragPreviewCommit{}, nil
	case command.DragPreviewCancel:
		return &DragPreviewCancel{}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupported, kind)
}

// Decode builds the command named by kind from its JSON arguments. The kind
// is resolved leniently ("set-splitter-ratio" works). Unknown fields are rejected.
func Decode(kind string, args json.RawMessage) (command.Command, error) {
	k, err := command.ParseKind(kind)
	if err != nil {
		return nil, err
	}
	ptr, err := New(k)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(args)) > 0 && !bytes.Equal(bytes.TrimSpace(args), []byte("null")) {
		dec := json.NewDecoder(bytes.NewReader(args))
		dec.DisallowUnknownFields()
		if err := dec.Decode(ptr); err != nil {
			return nil, fmt.Errorf("decode %s args: %w", k, err)
		}
	}
	return deref(ptr), nil
}

// DecodeEnvelope is Decode over an Envelope.
func DecodeEnvelope(env Envelope) (command.Command, error) {
	return Decode(env.Kind, env.Args)
}

// Encode is the inverse of Decode.
func Encode(cmd command.Command) (Envelope, error) {
	if cmd == nil {
		return Envelope{}, fmt.Errorf("%w: <nil>", ErrUnsupported)
	}
	args, err := json.Marshal(cmd)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s: %w", cmd.Kind(), err)
	}
	return Envelope{Kind: string(cmd.Kind()), Args: args}, nil
}

// deref turns the decoding target back into the value form the executor
// switches on.
func deref(ptr command.Command) command.Command {
	switch c := ptr.(type) {
	case *ActivateTab:
		return *c
	case *CloseTab:
		return *c
	case *CloseGroup:
		return *c
	case *FloatGroup:
		return *c
	case *DockToTarget:
		return *c
	case *SetSplitterRatio:
		return *c
	case *ToggleAutoHide:
		return *c
	case *SaveLayout:
		return *c
	case *LoadLayout:
		return *c
	case *ResetLayout:
		return *c
	case *DragPreviewBegin:
		return *c
	case *DragPreviewUpdate:
		return *c
	case *DragPreviewCommit:
		return *c
	case *DragPreviewCancel:
		return *c
	}
	return ptr
}
