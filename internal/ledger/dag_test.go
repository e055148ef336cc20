package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoOrder_Diamond(t *testing.T) {
	nodes := []string{"d", "c", "b", "a"}
	edges := map[string][]string{
		"b": {"a"},
		"c": {"a"},
		"d": {"b", "c"},
	}

	order, depth, err := topoOrder(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, order)
	assert.Equal(t, map[string]int{"a": 0, "b": 1, "c": 1, "d": 2}, depth)
}

func TestTopoOrder_LongestPathDepth(t *testing.T) {
	nodes := []string{"a", "b", "c"}
	edges := map[string][]string{
		"b": {"a"},
		"c": {"a", "b"},
	}

	_, depth, err := topoOrder(nodes, edges)
	require.NoError(t, err)
	assert.Equal(t, 2, depth["c"])
}

func TestTopoOrder_CyclePath(t *testing.T) {
	nodes := []string{"root", "a", "b"}
	edges := map[string][]string{
		"a": {"root", "b"},
		"b": {"a"},
	}

	_, _, err := topoOrder(nodes, edges)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCycle)
	assert.Contains(t, err.Error(), "a -> b -> a")
}

func TestTopoOrder_Empty(t *testing.T) {
	order, _, err := topoOrder(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, order)
}

func TestTopoOrder_RootsHaveZeroDepth(t *testing.T) {
	nodes := []string{"x", "y", "z"}
	edges := map[string][]string{"z": {"x"}}

	_, depth, err := topoOrder(nodes, edges)
	require.NoError(t, err)
	require.Len(t, depth, 3)
	for _, root := range []string{"x", "y"} {
		d, ok := depth[root]
		assert.True(t, ok, root)
		assert.Zero(t, d, root)
	}
	assert.Equal(t, 1, depth["z"])
}
