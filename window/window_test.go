package window

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/bibnet/adjacency"
	"github.com/brunobiangulo/bibnet/record"
)

func TestSpecCovering(t *testing.T) {
	spec := Spec{Width: 5, Start: 1990, End: 2000}
	require.NoError(t, spec.Validate())

	assert.Equal(t, 2, spec.HalfWidth())
	assert.Equal(t, []int{1990, 1991, 1992, 1993, 1994}, spec.Covering(1992))
	assert.Equal(t, []int{1998, 1999, 2000}, spec.Covering(2000))
	assert.Equal(t, []int{1990}, spec.Covering(1988))
	assert.Empty(t, spec.Covering(1987))
	assert.Len(t, spec.Keys(), 11)

	for _, w := range spec.Keys() {
		want := w >= 1990 && w <= 1994
		assert.Equal(t, want, spec.Contains(w, 1992), "window %d", w)
	}
}

func TestSpecEvenWidthIsSymmetric(t *testing.T) {
	spec := Spec{Width: 4, Start: 2000, End: 2000}
	lo, hi := spec.Range(2000)
	assert.Equal(t, 1998, lo)
	assert.Equal(t, 2002, hi)
}

func TestSpecValidate(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr bool
	}{
		{"ok", Spec{Width: 3, Start: 2000, End: 2002}, false},
		{"zero width", Spec{Width: 0, Start: 2000, End: 2002}, true},
		{"negative width", Spec{Width: -3, Start: 2000, End: 2002}, true},
		{"empty range", Spec{Width: 3, Start: 2003, End: 2002}, true},
		{"single year", Spec{Width: 1, Start: 2000, End: 2000}, false},
		{"inside bounds", Spec{Width: 3, Start: 2000, End: 2002, Bounds: &Bounds{Min: 1999, Max: 2003}}, false},
		{"outside bounds", Spec{Width: 5, Start: 2000, End: 2002, Bounds: &Bounds{Min: 1999, Max: 2003}}, true},
		{"inverted bounds", Spec{Width: 1, Start: 2000, End: 2000, Bounds: &Bounds{Min: 2001, Max: 1999}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.spec.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrWindowConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func endToEndRecords() []record.Paper {
	return []record.Paper{
		{ID: "1", Authors: []record.EntityID{"A", "B"}, Year: 2000},
		{ID: "2", Authors: []record.EntityID{"A", "C"}, Year: 2001},
		{ID: "3", Authors: []record.EntityID{"B", "C"}, Year: 2002},
	}
}

func TestAssembleEndToEnd(t *testing.T) {
	spec := Spec{Width: 3, Start: 2000, End: 2002}
	nets, err := Assemble(context.Background(), endToEndRecords(), spec, adjacency.Simple, nil)
	require.NoError(t, err)

	assert.Equal(t, []int{2000, 2001, 2002}, nets.Keys())

	w2000 := nets.At(2000)
	require.NotNil(t, w2000)
	assert.Equal(t, 1, w2000.Adjacency.Weight("A", "B"))
	assert.Equal(t, 1, w2000.Adjacency.Weight("A", "C"))
	assert.Equal(t, 2, w2000.Adjacency.EdgeCount())
	assert.Equal(t, adjacency.NodeWeights{"A": 2, "B": 1, "C": 1}, w2000.Weights)

	w2001 := nets.At(2001)
	assert.Equal(t, 3, w2001.Records)
	assert.Equal(t, adjacency.NodeWeights{"A": 2, "B": 2, "C": 2}, w2001.Weights)

	w2002 := nets.At(2002)
	assert.Equal(t, 2, w2002.Records)
	assert.Equal(t, 1, w2002.Adjacency.Weight("B", "C"))
}

func TestAssembleDenseKeysAndUndated(t *testing.T) {
	records := []record.Paper{
		{Authors: []record.EntityID{"A", "B"}, Year: 1992},
		{Authors: []record.EntityID{"A", "B"}, Year: record.UnknownYear},
		{Authors: []record.EntityID{"C", "D"}, Year: 1970},
	}
	spec := Spec{Width: 5, Start: 1990, End: 2000}
	nets, err := Assemble(context.Background(), records, spec, adjacency.Simple, nil)
	require.NoError(t, err)

	assert.Equal(t, 11, nets.Len())
	assert.Equal(t, 1, nets.Undated)
	assert.Equal(t, 1, nets.Outside)

	var withRecord []int
	nets.Each(func(w int, r *adjacency.Result) {
		require.NotNil(t, r, "window %d", w)
		if !r.Empty() {
			withRecord = append(withRecord, w)
		} else {
			assert.Empty(t, r.Adjacency)
			assert.Empty(t, r.Weights)
		}
	})
	assert.Equal(t, []int{1990, 1991, 1992, 1993, 1994}, withRecord)
}

func TestAssembleParallelMatchesSequential(t *testing.T) {
	var records []record.Paper
	authors := []record.EntityID{"A", "B", "C", "D", "E"}
	for i := 0; i < 60; i++ {
		records = append(records, record.Paper{
			Authors: []record.EntityID{authors[i%5], authors[(i+1)%5], authors[(i+3)%5]},
			Year:    1990 + i%12,
		})
	}
	spec := Spec{Width: 3, Start: 1990, End: 2001}

	seq, err := Assemble(context.Background(), records, spec, adjacency.Simple, nil)
	require.NoError(t, err)
	par, err := Assemble(context.Background(), records, spec, adjacency.Simple, nil, WithWorkers(4))
	require.NoError(t, err)

	for _, w := range seq.Keys() {
		assert.Equal(t, seq.At(w).Adjacency, par.At(w).Adjacency, "window %d", w)
		assert.Equal(t, seq.At(w).Weights, par.At(w).Weights, "window %d", w)
		assert.Equal(t, seq.At(w).Primaries, par.At(w).Primaries, "window %d", w)
	}
}

func TestAssembleRejectsBadSpec(t *testing.T) {
	_, err := Assemble(context.Background(), endToEndRecords(), Spec{Width: 0, Start: 2000, End: 2002}, adjacency.Simple, nil)
	assert.ErrorIs(t, err, ErrWindowConfig)
}

func TestAssembleCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Assemble(ctx, endToEndRecords(), Spec{Width: 3, Start: 2000, End: 2002}, adjacency.Simple, nil)
	assert.ErrorIs(t, err, context.Canceled)
}
