package bibnet

import (
	"github.com/brunobiangulo/bibnet/record"
	"github.com/brunobiangulo/bibnet/stats"
)

// Trajectories turns every per-node statistic of res into one vector per
// entity, one component per window in window order. A window where the
// entity is absent or the cell failed contributes 0. Statistics without
// per-node values are left out.
func Trajectories(res *stats.Result) map[string]map[record.EntityID][]float32 {
	out := make(map[string]map[record.EntityID][]float32)
	if res == nil || len(res.Windows) == 0 {
		return out
	}
	for _, name := range res.Statistics {
		col := res.Cells[name]
		vectors := make(map[record.EntityID][]float32)
		for i, w := range res.Windows {
			o := col[w]
			vals, ok := o.Value.(stats.NodeValues)
			if !o.OK() || !ok {
				continue
			}
			for e, v := range vals {
				vec, seen := vectors[e]
				if !seen {
					vec = make([]float32, len(res.Windows))
					vectors[e] = vec
				}
				vec[i] = float32(v)
			}
		}
		if len(vectors) > 0 {
			out[name] = vectors
		}
	}
	return out
}
