package script

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTable(t *testing.T) {
	r := classify(`{"columns":["a","b"],"data":[["1","2"],["3","4"]]}`)
	table, ok := r.(Table)
	require.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, table.Columns)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, table.Rows)
}

func TestClassifyTableNullCellsBecomeEmpty(t *testing.T) {
	r := classify(`{"columns":["a"],"data":[[null],["x"]]}`)
	table, ok := r.(Table)
	require.True(t, ok)
	assert.Equal(t, [][]string{{""}, {"x"}}, table.Rows)
}

func TestClassifyErrorFieldOverridesTable(t *testing.T) {
	r := classify(`{"columns":["a"],"data":[["1"]],"error":"query failed"}`)
	assert.Equal(t, Scalar("query failed"), r)
}

func TestClassifyPlainTextFallsBackToScalar(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"not json", "hello world"},
		{"json but not a table", `{"value": 42}`},
		{"missing data", `{"columns":["a"]}`},
		{"missing columns", `{"data":[["1"]]}`},
		{"json array", `[1,2,3]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Scalar(tt.line), classify(tt.line))
		})
	}
}

func TestResultStoreReplaces(t *testing.T) {
	s := NewResultStore()
	s.Set("calc", Table{Columns: []string{"a"}, Rows: [][]string{{"1"}}})
	s.Set("calc", Scalar("42"))

	r, ok := s.Get("calc")
	require.True(t, ok)
	assert.Equal(t, Scalar("42"), r)
}

func TestResultStoreSnapshot(t *testing.T) {
	s := NewResultStore()
	s.Set("a", Scalar("1"))
	s.Set("b", Scalar("2"))

	snap := s.Snapshot()
	assert.Len(t, snap, 2)

	// Mutating the snapshot does not touch the store
	delete(snap, "a")
	_, ok := s.Get("a")
	assert.True(t, ok)
}

func TestResultStoreClear(t *testing.T) {
	s := NewResultStore()
	s.Set("a", Scalar("1"))
	s.Clear()
	_, ok := s.Get("a")
	assert.False(t, ok)
}

func TestResultKey(t *testing.T) {
	assert.Equal(t, "calc", ResultKey("calc", ""))
	assert.Equal(t, "calc_mean", ResultKey("calc", "mean"))
}
