package adjacency

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brunobiangulo/bibnet/record"
)

func paper(year int, authors ...record.EntityID) record.Paper {
	return record.Paper{Authors: authors, Year: year}
}

func TestBuildSimple(t *testing.T) {
	records := []record.Paper{
		paper(2000, "A", "B", "C"),
		paper(2001, "A", "B"),
		paper(2002, "B", "A"),
		paper(2003, "D"),
		paper(2004),
	}

	res := Build(records, Simple, nil)

	assert.Equal(t, 2, res.Adjacency.Weight("A", "B"))
	assert.Equal(t, 1, res.Adjacency.Weight("A", "C"))
	assert.Equal(t, 1, res.Adjacency.Weight("B", "A"))
	assert.Equal(t, 0, res.Adjacency.Weight("B", "C"), "non-lead pairs are not linked")
	assert.Equal(t, NodeWeights{"A": 3, "B": 3, "C": 1, "D": 1}, res.Weights)
	assert.Equal(t, 4, res.Records)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []record.EntityID{"A", "B", "C", "D"}, res.Primaries)
	assert.Equal(t, []record.EntityID{"A", "B", "C"}, res.Adjacency.Entities())
	assert.Equal(t, 3, res.Adjacency.EdgeCount())
}

func TestBuildSimpleNodeWeightSumEqualsMentions(t *testing.T) {
	records := []record.Paper{
		paper(1990, "x", "y", "z", "w"),
		paper(1991, "y"),
		paper(1992, "z", "x"),
	}
	first := Build(records, Simple, nil)
	second := Build(records, Simple, nil)

	assert.Equal(t, 7, first.Weights.Total())
	assert.Equal(t, first.Weights, second.Weights)
	assert.Equal(t, first.Adjacency, second.Adjacency)
}

func TestBuildSimpleSingleEntityAndRepeatedLead(t *testing.T) {
	res := Build([]record.Paper{paper(2000, "solo"), paper(2000, "A", "A", "B")}, Simple, nil)

	assert.Empty(t, res.Adjacency["solo"])
	assert.Equal(t, 1, res.Weights["solo"])
	assert.Equal(t, 0, res.Adjacency.Weight("A", "A"))
	assert.Equal(t, 1, res.Adjacency.Weight("A", "B"))
	assert.Equal(t, 2, res.Weights["A"])
}

func TestBuildBipartite(t *testing.T) {
	records := []record.Paper{
		{Authors: []record.EntityID{"A", "B"}, Subjects: []record.EntityID{"45", "98"}, Year: 2000},
		{Authors: []record.EntityID{"A"}, Subjects: []record.EntityID{"45"}, Year: 2001},
		{Authors: []record.EntityID{"C"}, Year: 2001},
	}

	res := Build(records, Bipartite, nil)

	assert.Equal(t, 2, res.Adjacency.Weight("A", "45"))
	assert.Equal(t, 1, res.Adjacency.Weight("A", "98"))
	assert.Equal(t, 1, res.Adjacency.Weight("B", "45"))
	assert.Equal(t, 1, res.Adjacency.Weight("B", "98"))
	assert.Equal(t, NodeWeights{"A": 2, "B": 1, "45": 2, "98": 1}, res.Weights)
	assert.Equal(t, 2, res.Records)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []record.EntityID{"A", "B"}, res.Primaries)
}

func TestBuildBipartiteKeepsSelectorFilters(t *testing.T) {
	sel := record.NewSelector(
		record.WithYears(2000),
		record.WithEntityFilter(record.MustFilter("A")),
		record.WithSubjectLevel(1),
	)
	records := []record.Paper{
		{Authors: []record.EntityID{"A", "B"}, Subjects: []record.EntityID{"12.30.Xy"}, Year: 2000},
		{Authors: []record.EntityID{"C"}, Subjects: []record.EntityID{"25.10.Ab"}, Year: 1990},
	}

	res := Build(records, Bipartite, sel)

	assert.Equal(t, 1, res.Adjacency.Weight("A", "10"))
	assert.Empty(t, res.Adjacency["B"], "entity filter applies in bipartite mode")
	assert.Empty(t, res.Adjacency["C"], "year restriction applies in bipartite mode")
	assert.Equal(t, NodeWeights{"A": 1, "10": 1}, res.Weights)
	assert.Equal(t, 1, res.Records)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, []record.EntityID{"A"}, res.Primaries)
	assert.False(t, sel.Paired(), "caller's selector is not modified")
}

func TestBuildSubjects(t *testing.T) {
	sel := record.NewSelector(record.WithKind(record.Subjects), record.WithSubjectLevel(2))
	res := Build([]record.Paper{
		{Subjects: []record.EntityID{"45.10.Db", "98.80.Es", "45.20.-d"}, Year: 2000},
	}, Simple, sel)

	assert.Equal(t, 1, res.Adjacency.Weight("45", "98"))
	assert.Equal(t, NodeWeights{"45": 1, "98": 1}, res.Weights)
}

func TestBuilderFinalizeFreezes(t *testing.T) {
	b := NewBuilder(Simple, nil)
	require.True(t, b.AddEntities([]record.EntityID{"A", "B"}, nil))
	res := b.Finalize()
	assert.Equal(t, 1, res.Records)

	assert.Panics(t, func() { b.Add(paper(2000, "A")) })
	assert.Panics(t, func() { b.AddEntities([]record.EntityID{"A"}, nil) })
}

func TestMerge(t *testing.T) {
	a := Build([]record.Paper{paper(2000, "A", "B")}, Simple, nil)
	b := Build([]record.Paper{paper(2001, "A", "B"), paper(2001, "C", "A")}, Simple, nil)

	m := Merge(a, nil, b)
	assert.Equal(t, 2, m.Adjacency.Weight("A", "B"))
	assert.Equal(t, 1, m.Adjacency.Weight("C", "A"))
	assert.Equal(t, NodeWeights{"A": 3, "B": 2, "C": 1}, m.Weights)
	assert.Equal(t, 3, m.Records)
	assert.Equal(t, []record.EntityID{"A", "B", "C"}, m.Primaries)

	// inputs are not mutated
	assert.Equal(t, 1, a.Adjacency.Weight("A", "B"))
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("Bipartite")
	require.NoError(t, err)
	assert.Equal(t, Bipartite, m)

	_, err = ParseMode("tripartite")
	assert.Error(t, err)
}
