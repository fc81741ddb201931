package grasp

import (
	"sort"

	"github.com/ayusman/hasta/internal/config"
)

// Rank returns a copy of the set sorted by score, highest first. Ties keep
// their input order.
func Rank(s Set) Set {
	out := make(Set, len(s))
	copy(out, s)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})
	return out
}

// PostFilter drops grasps below MinScore or outside the workspace, keeping order.
func PostFilter(s Set, pf config.PostFilter) Set {
	if pf.MinScore <= 0 && pf.Workspace == nil {
		return s
	}
	out := make(Set, 0, len(s))
	for _, g := range s {
		if pf.MinScore > 0 && g.Score < pf.MinScore {
			continue
		}
		if ws := pf.Workspace; ws != nil && !ws.Contains(g.Translation.X, g.Translation.Y, g.Translation.Z) {
			continue
		}
		out = append(out, g)
	}
	return out
}
