package dock

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dayuer/dockbus/internal/command"
)

func TestDecode(t *testing.T) {
	cmd, err := Decode("set-splitter-ratio", json.RawMessage(`{"splitter":"root","ratio":0.25}`))
	require.NoError(t, err)
	assert.Equal(t, SetSplitterRatio{Splitter: "root", Ratio: 0.25}, cmd)

	cmd, err = Decode("ResetLayout", nil)
	require.NoError(t, err)
	assert.Equal(t, ResetLayout{}, cmd)

	cmd, err = Decode("dragpreviewcancel", json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Equal(t, command.DragPreviewCancel, cmd.Kind())
}

func TestDecode_Errors(t *testing.T) {
	_, err := Decode("close-tabb", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did you mean CloseTab")

	_, err = Decode("ActivateTab", json.RawMessage(`{"group":"main","tab":1}`))
	assert.Error(t, err)

	_, err = Decode("ActivateTab", json.RawMessage(`{"group":"main","bogus":true}`))
	assert.Error(t, err, "unknown fields are rejected")
}

func TestNew_CoversCatalog(t *testing.T) {
	for _, k := range command.Kinds() {
		cmd, err := New(k)
		require.NoError(t, err, k)
		assert.Equal(t, k, cmd.Kind())
		assert.Equal(t, k, deref(cmd).Kind())
	}
	_, err := New("Alien")
	assert.ErrorIs(t, err, ErrUnsupported)
}

func TestEncodeDecodeEnvelope(t *testing.T) {
	env, err := Encode(DockToTarget{Panel: "files", Target: "main", Zone: ZoneLeft})
	require.NoError(t, err)
	assert.Equal(t, "DockToTarget", env.Kind)

	cmd, err := DecodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, DockToTarget{Panel: "files", Target: "main", Zone: ZoneLeft}, cmd)

	_, err = Encode(nil)
	assert.ErrorIs(t, err, ErrUnsupported)
}
