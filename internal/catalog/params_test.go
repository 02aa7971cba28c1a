package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupFold(t *testing.T) {
	params := map[string]string{"External": "true", "owner": "alice"}

	v, ok := LookupFold(params, "EXTERNAL")
	assert.True(t, ok)
	assert.Equal(t, "true", v)

	v, ok = LookupFold(params, "owner")
	assert.True(t, ok)
	assert.Equal(t, "alice", v)

	_, ok = LookupFold(params, "missing")
	assert.False(t, ok)

	_, ok = LookupFold(nil, "EXTERNAL")
	assert.False(t, ok)
}

func TestIsExternal(t *testing.T) {
	tests := []struct {
		name   string
		params map[string]string
		want   bool
	}{
		{"upper case", map[string]string{"EXTERNAL": "TRUE"}, true},
		{"lower case key", map[string]string{"external": "TRUE"}, true},
		{"lower case value", map[string]string{"EXTERNAL": "true"}, true},
		{"false value", map[string]string{"EXTERNAL": "FALSE"}, false},
		{"missing", map[string]string{"x": "1"}, false},
		{"nil", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsExternal(tt.params))
		})
	}
}

func TestDropParameters(t *testing.T) {
	t.Run("external keeps only the marker", func(t *testing.T) {
		got := DropParameters(map[string]string{"EXTERNAL": "TRUE", "x": "1"})
		assert.Equal(t, map[string]string{"EXTERNAL": "TRUE"}, got)
	})

	t.Run("lower case external key still matches", func(t *testing.T) {
		got := DropParameters(map[string]string{"external": "TRUE", "x": "1"})
		assert.Equal(t, map[string]string{"EXTERNAL": "TRUE"}, got)
	})

	t.Run("managed table is cleared", func(t *testing.T) {
		got := DropParameters(map[string]string{"transient_lastDdlTime": "1", "x": "1"})
		assert.Empty(t, got)
		assert.NotNil(t, got)
	})
}

func TestTableClone(t *testing.T) {
	orig := &Table{
		DatabaseName:  "db",
		TableName:     "t",
		PartitionKeys: []string{"dt"},
		Parameters:    map[string]string{"a": "1"},
	}

	c := orig.Clone()
	c.Parameters["a"] = "2"
	c.PartitionKeys[0] = "hour"

	assert.Equal(t, "1", orig.Parameters["a"])
	assert.Equal(t, "dt", orig.PartitionKeys[0])
	assert.Equal(t, "db.t", c.QualifiedName())
	assert.True(t, c.Partitioned())
}
