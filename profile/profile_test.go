package profile

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/bibnet/record"
)

func TestBuild(t *testing.T) {
	records := []record.Paper{
		{Authors: []record.EntityID{"A", "B"}, Subjects: []record.EntityID{"45.10.Db", "98.80.Es"}, Year: 2000},
		{Authors: []record.EntityID{"A"}, Subjects: []record.EntityID{"45.20.-d"}, Year: 2001},
		{Authors: []record.EntityID{"C"}, Year: 2001},
		{Subjects: []record.EntityID{"12.00.00"}, Year: 2001},
	}
	sel := record.NewSelector(record.WithSubjectLevel(2))
	ps := Build(records, sel, 0)

	assert.Equal(t, []record.EntityID{"A", "B", "C"}, ps.Entities())

	a := ps["A"]
	require.NotNil(t, a)
	assert.Equal(t, 2, a.Papers)
	assert.Equal(t, map[record.EntityID]int{"45": 2, "98": 1}, a.Subjects)
	assert.Equal(t, 2, a.NumSubjects)
	assert.Equal(t, record.EntityID("45"), a.MostCommon)
	want := -(2.0/3*math.Log10(2.0/3) + 1.0/3*math.Log10(1.0/3))
	assert.InDelta(t, want, a.Entropy, 1e-12)

	ids, probs := a.Distribution()
	assert.Equal(t, []record.EntityID{"45", "98"}, ids)
	assert.InDeltaSlice(t, []float64{2.0 / 3, 1.0 / 3}, probs, 1e-12)

	b := ps["B"]
	assert.InDelta(t, math.Log10(2), b.Entropy, 1e-12)
	assert.Equal(t, record.EntityID("45"), b.MostCommon, "ties go to the smallest id")

	c := ps["C"]
	assert.Equal(t, 1, c.Papers)
	assert.Zero(t, c.Entropy)
	assert.Zero(t, c.NumSubjects)
	assert.Empty(t, c.MostCommon)
}

func TestBuildEntropyBase(t *testing.T) {
	records := []record.Paper{
		{Authors: []record.EntityID{"A"}, Subjects: []record.EntityID{"1", "2"}, Year: 2000},
	}
	ps := Build(records, nil, 2)
	assert.InDelta(t, 1.0, ps["A"].Entropy, 1e-12)
}

func TestBuildRespectsSelectorYears(t *testing.T) {
	records := []record.Paper{
		{Authors: []record.EntityID{"A"}, Subjects: []record.EntityID{"1"}, Year: 2000},
		{Authors: []record.EntityID{"A"}, Subjects: []record.EntityID{"2"}, Year: 2005},
	}
	ps := Build(records, record.NewSelector(record.WithYears(2000)), 10)
	assert.Equal(t, 1, ps["A"].Papers)
	assert.Equal(t, map[record.EntityID]int{"1": 1}, ps["A"].Subjects)
}
