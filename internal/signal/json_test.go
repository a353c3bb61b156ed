package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignalsJSONRoundTrip(t *testing.T) {
	in := map[string]Signal{
		"content.type":      New("content.type", String("Photo"), 0.9, "type"),
		"quality.sharpness": New("quality.sharpness", Float(1234.5), 0.8, "blur"),
		"color.palette":     New("color.palette", StringList([]string{"#ff0000", "#00ff00"}), 0.9, "color"),
		"identity.is_animated": New("identity.is_animated", Bool(false), 1.0, "identity"),
	}

	blob, err := EncodeSignals(in)
	require.NoError(t, err)
	out, err := DecodeSignals(blob)
	require.NoError(t, err)
	require.Len(t, out, len(in))

	v, _ := out["content.type"].Value.AsString()
	assert.Equal(t, "Photo", v)
	f, _ := out["quality.sharpness"].Value.AsFloat()
	assert.InDelta(t, 1234.5, f, 1e-9)
	list, _ := out["color.palette"].Value.AsStringList()
	assert.Equal(t, []string{"#ff0000", "#00ff00"}, list)
	b, _ := out["identity.is_animated"].Value.AsBool()
	assert.False(t, b)
	assert.Equal(t, "blur", out["quality.sharpness"].Source)
}

func TestDecodeSignalsEmptyBlob(t *testing.T) {
	out, err := DecodeSignals("")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestDecodeSignalsBadBlob(t *testing.T) {
	_, err := DecodeSignals("{not json")
	assert.Error(t, err)
}
