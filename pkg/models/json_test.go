package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONMap(t *testing.T) {
	t.Run("round trips through driver value", func(t *testing.T) {
		m := JSONMap{"summary": "text", "count": float64(3)}

		value, err := m.Value()
		require.NoError(t, err)

		var scanned JSONMap
		require.NoError(t, scanned.Scan(value))
		assert.Equal(t, m, scanned)
	})

	t.Run("nil map stores NULL", func(t *testing.T) {
		var m JSONMap
		value, err := m.Value()
		require.NoError(t, err)
		assert.Nil(t, value)

		var scanned JSONMap
		require.NoError(t, scanned.Scan(nil))
		assert.Nil(t, scanned)
	})

	t.Run("rejects malformed JSON", func(t *testing.T) {
		var scanned JSONMap
		assert.Error(t, scanned.Scan([]byte("{not json")))
	})

	t.Run("GetString ignores non-string values", func(t *testing.T) {
		m := JSONMap{"name": "doc", "count": float64(3)}
		assert.Equal(t, "doc", m.GetString("name"))
		assert.Equal(t, "", m.GetString("count"))
		assert.Equal(t, "", m.GetString("missing"))
	})

	t.Run("GetStrings handles both slice shapes", func(t *testing.T) {
		m := JSONMap{
			"typed":   []string{"a", "b"},
			"decoded": []interface{}{"c", "d", float64(1)},
		}
		assert.Equal(t, []string{"a", "b"}, m.GetStrings("typed"))
		assert.Equal(t, []string{"c", "d"}, m.GetStrings("decoded"))
		assert.Nil(t, m.GetStrings("missing"))
	})

	t.Run("Clone is independent at the top level", func(t *testing.T) {
		m := JSONMap{"key": "original"}
		clone := m.Clone()
		clone["key"] = "changed"
		assert.Equal(t, "original", m.GetString("key"))
	})
}

func TestStringArray(t *testing.T) {
	t.Run("round trips through driver value", func(t *testing.T) {
		a := StringArray{"alpha", "beta"}

		value, err := a.Value()
		require.NoError(t, err)

		var scanned StringArray
		require.NoError(t, scanned.Scan(value))
		assert.Equal(t, a, scanned)
	})

	t.Run("Contains", func(t *testing.T) {
		a := StringArray{"alpha", "beta"}
		assert.True(t, a.Contains("beta"))
		assert.False(t, a.Contains("gamma"))
	})
}

func TestVector(t *testing.T) {
	t.Run("renders the shared JSON and pgvector literal", func(t *testing.T) {
		v := Vector{0.1, -0.5, 2}
		assert.Equal(t, "[0.1,-0.5,2]", v.String())
	})

	t.Run("scans its own output", func(t *testing.T) {
		v := Vector{0.25, 0.75}
		value, err := v.Value()
		require.NoError(t, err)

		var scanned Vector
		require.NoError(t, scanned.Scan(value))
		assert.Equal(t, v, scanned)
	})

	t.Run("scans pgvector output with spaces", func(t *testing.T) {
		var scanned Vector
		require.NoError(t, scanned.Scan(" [1,2,3] "))
		assert.Equal(t, Vector{1, 2, 3}, scanned)
	})

	t.Run("treats empty and null as nil", func(t *testing.T) {
		var scanned Vector
		require.NoError(t, scanned.Scan(""))
		assert.Nil(t, scanned)
		require.NoError(t, scanned.Scan("null"))
		assert.Nil(t, scanned)
		require.NoError(t, scanned.Scan(nil))
		assert.Nil(t, scanned)
	})

	t.Run("reports dimensions", func(t *testing.T) {
		assert.Equal(t, 3, Vector{1, 2, 3}.Dimensions())
		assert.Equal(t, 0, Vector(nil).Dimensions())
	})
}
