package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKernelDerivesContradiction(t *testing.T) {
	k, err := NewKernel()
	require.NoError(t, err)

	facts := []Fact{
		{Predicate: "content_type", Args: []interface{}{"Photo"}},
		{Predicate: "text_likeliness", Args: []interface{}{int64(85)}},
	}
	derived, err := k.Evaluate(facts, "contradiction")
	require.NoError(t, err)
	require.Len(t, derived, 1)
	assert.Equal(t, "photo_with_heavy_text", derived[0].Args[0])
	assert.Equal(t, "warning", derived[0].Args[1])
}

func TestKernelCleanProfile(t *testing.T) {
	k, err := NewKernel()
	require.NoError(t, err)

	facts := []Fact{
		{Predicate: "content_type", Args: []interface{}{"Photo"}},
		{Predicate: "text_likeliness", Args: []interface{}{int64(10)}},
		{Predicate: "is_animated", Args: []interface{}{"/false"}},
		{Predicate: "frame_count", Args: []interface{}{int64(1)}},
	}
	derived, err := k.Evaluate(facts, "contradiction")
	require.NoError(t, err)
	assert.Empty(t, derived)
}

func TestKernelAnimatedSingleFrame(t *testing.T) {
	k, err := NewKernel()
	require.NoError(t, err)

	facts := []Fact{
		{Predicate: "is_animated", Args: []interface{}{"/true"}},
		{Predicate: "frame_count", Args: []interface{}{int64(1)}},
	}
	derived, err := k.Evaluate(facts, "contradiction")
	require.NoError(t, err)
	require.Len(t, derived, 1)
	assert.Equal(t, "error", derived[0].Args[1])
}

func TestKernelIsolatesEvaluations(t *testing.T) {
	k, err := NewKernel()
	require.NoError(t, err)

	_, err = k.Evaluate([]Fact{
		{Predicate: "content_type", Args: []interface{}{"Icon"}},
		{Predicate: "width", Args: []interface{}{int64(2048)}},
	}, "contradiction")
	require.NoError(t, err)

	// A later evaluation must not see the earlier facts.
	derived, err := k.Evaluate(nil, "contradiction")
	require.NoError(t, err)
	assert.Empty(t, derived)
}

func TestKernelExtraRules(t *testing.T) {
	extra := `
Decl always(Kind) bound [/string].
always("present") :- content_type(_).
`
	k, err := NewKernel(extra)
	require.NoError(t, err)

	derived, err := k.Evaluate([]Fact{
		{Predicate: "content_type", Args: []interface{}{"Photo"}},
	}, "always")
	require.NoError(t, err)
	require.Len(t, derived, 1)
}

func TestScaleFloat(t *testing.T) {
	assert.Equal(t, int64(0), ScaleFloat(-0.5))
	assert.Equal(t, int64(50), ScaleFloat(0.5))
	assert.Equal(t, int64(100), ScaleFloat(1.0))
}
