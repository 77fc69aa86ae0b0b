package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataPolicyModes(t *testing.T) {
	t.Run("all", func(t *testing.T) {
		p := AllIndexed()
		assert.True(t, p.IsIndexed("anything"))
	})

	t.Run("none", func(t *testing.T) {
		p := NoneIndexed()
		assert.False(t, p.IsIndexed("anything"))
	})

	t.Run("allowlist", func(t *testing.T) {
		p := Allowlist("topic")
		assert.True(t, p.IsIndexed("topic"))
		assert.False(t, p.IsIndexed("other"))
	})

	t.Run("denylist", func(t *testing.T) {
		p := Denylist("secret")
		assert.False(t, p.IsIndexed("secret"))
		assert.True(t, p.IsIndexed("other"))
	})
}

func TestParseMetadataPolicy(t *testing.T) {
	for _, mode := range []string{"all", "none", "allowlist", "allow", "deny_list", "DENYLIST"} {
		_, err := ParseMetadataPolicy(mode, "f")
		assert.NoError(t, err, mode)
	}

	_, err := ParseMetadataPolicy("sometimes")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCoerceFilter(t *testing.T) {
	p := Allowlist("topic", "rank")

	coerced, err := p.CoerceFilter(map[string]any{"topic": "go", "rank": 3})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"topic": "go", "rank": "3"}, coerced)

	_, err = p.CoerceFilter(map[string]any{"hidden": true})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	coerced, err = p.CoerceFilter(nil)
	require.NoError(t, err)
	assert.Nil(t, coerced)
}

func TestCoerceString(t *testing.T) {
	assert.Equal(t, "go", CoerceString("go"))
	assert.Equal(t, "true", CoerceString(true))
	assert.Equal(t, "null", CoerceString(nil))

	// ints and floats must store identically for filtered retrieval
	assert.Equal(t, CoerceString(1), CoerceString(1.0))
	assert.Equal(t, CoerceString(int64(7)), CoerceString(float32(7)))
}

func TestIndexedValues(t *testing.T) {
	p := Denylist("raw")
	indexed := p.IndexedValues(map[string]any{"topic": "go", "raw": "skip me"})
	assert.Equal(t, map[string]string{"topic": "go"}, indexed)

	assert.Nil(t, p.IndexedValues(nil))
	assert.Nil(t, NoneIndexed().IndexedValues(map[string]any{"a": 1}))
}
