package pipeline

import (
	"github.com/your-org/attendance/internal/gallery"
	"github.com/your-org/attendance/internal/models"
	"github.com/your-org/attendance/internal/vision"
)

// Match is the gallery entry chosen for a probe face.
type Match struct {
	Index    int
	Identity models.Identity
	Distance float32
}

// bestMatch picks, among matched comparisons, the one with the smallest
// distance; ties go to the lowest snapshot index.
func bestMatch(snap *gallery.Snapshot, cmps []vision.Comparison) (Match, bool) {
	best := -1
	n := min(len(cmps), snap.Len())
	for i := 0; i < n; i++ {
		if !cmps[i].Matched {
			continue
		}
		if best < 0 || cmps[i].Distance < cmps[best].Distance {
			best = i
		}
	}
	if best < 0 {
		return Match{}, false
	}
	return Match{
		Index:    best,
		Identity: snap.Identities[best],
		Distance: cmps[best].Distance,
	}, true
}
