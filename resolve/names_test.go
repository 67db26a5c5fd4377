package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"x", "x"},
		{"v_max", "v_max"},
		{"$price", "$price"},
		{"x'", "x_"},
		{"Δt", "_t"},
		{"2nd", "_2nd"},
		{"a b", "a_b"},
		{"in", "var_in"},
		{"not", "var_not"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Sanitize(c.in), "Sanitize(%q)", c.in)
	}
}

func TestNameMapIsPure(t *testing.T) {
	names := []string{"x'", "y", "Δt", "in"}
	a := NewNameMap(names)
	// Same set, different order: the mapping must be identical.
	b := NewNameMap([]string{"in", "Δt", "y", "x'"})

	for _, name := range names {
		sa, ok := a.Safe(name)
		require.True(t, ok)
		sb, ok := b.Safe(name)
		require.True(t, ok)
		assert.Equal(t, sa, sb, "mapping differs for %q", name)
	}
}

func TestNameMapIsInvertible(t *testing.T) {
	names := []string{"x'", "x_", "y", "a b", "a_b"}
	m := NewNameMap(names)

	seen := make(map[string]bool)
	for _, name := range names {
		safe, ok := m.Safe(name)
		require.True(t, ok, "no safe token for %q", name)
		require.False(t, seen[safe], "collision on %q", safe)
		seen[safe] = true

		orig, ok := m.Original(safe)
		require.True(t, ok)
		assert.Equal(t, name, orig)
	}
}

func TestRewrite(t *testing.T) {
	m := NewNameMap([]string{"x'", "y"})
	safe, _ := m.Safe("x'")

	assert.Equal(t, safe+" + y", m.Rewrite("{x'} + {y}"))
	// Bare references that need no translation pass through.
	assert.Equal(t, "y * 2", m.Rewrite("y * 2"))
}
