// Package profile summarises the subjects each entity publishes on.
package profile

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/brunobiangulo/bibnet/record"
)

// DefaultBase is the logarithm base used for subject entropy.
const DefaultBase = 10

// Profile is the subject summary of one primary entity.
type Profile struct {
	Entity record.EntityID `json:"entity"`
	// Papers counts the records the entity appears on.
	Papers int `json:"papers"`
	// Subjects counts subject occurrences across those records.
	Subjects    map[record.EntityID]int `json:"subjects"`
	Entropy     float64                 `json:"entropy"`
	NumSubjects int                     `json:"num_subjects"`
	MostCommon  record.EntityID         `json:"most_common,omitempty"`
}

// Distribution returns the subject frequencies normalised to sum to 1,
// ordered by subject id.
func (p *Profile) Distribution() ([]record.EntityID, []float64) {
	ids := make([]record.EntityID, 0, len(p.Subjects))
	var total int
	for s, n := range p.Subjects {
		ids = append(ids, s)
		total += n
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	probs := make([]float64, len(ids))
	if total == 0 {
		return ids, probs
	}
	for i, s := range ids {
		probs[i] = float64(p.Subjects[s]) / float64(total)
	}
	return ids, probs
}

// Profiles indexes profiles by entity.
type Profiles map[record.EntityID]*Profile

// Entities returns the profiled entities in sorted order.
func (ps Profiles) Entities() []record.EntityID {
	out := make([]record.EntityID, 0, len(ps))
	for e := range ps {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build profiles every primary entity sel yields from records. Records the
// selector rejects are ignored. Entropy uses the given logarithm base; a base
// of 1 or less selects DefaultBase.
func Build(records []record.Paper, sel *record.Selector, base float64) Profiles {
	if sel == nil {
		sel = record.NewSelector()
	}
	if base <= 1 {
		base = DefaultBase
	}

	out := make(Profiles)
	for _, p := range records {
		primary, _, err := sel.Select(p)
		if err != nil {
			continue
		}
		subjects := sel.Subjects(p)
		for _, e := range primary {
			pr, ok := out[e]
			if !ok {
				pr = &Profile{Entity: e, Subjects: make(map[record.EntityID]int)}
				out[e] = pr
			}
			pr.Papers++
			for _, s := range subjects {
				pr.Subjects[s]++
			}
		}
	}

	for _, pr := range out {
		pr.finish(base)
	}
	return out
}

func (p *Profile) finish(base float64) {
	p.NumSubjects = len(p.Subjects)
	ids, probs := p.Distribution()
	if len(ids) == 0 {
		return
	}
	// stat.Entropy is in nats.
	p.Entropy = stat.Entropy(probs) / math.Log(base)

	best := -1
	for _, s := range ids {
		if n := p.Subjects[s]; n > best {
			best = n
			p.MostCommon = s
		}
	}
}
