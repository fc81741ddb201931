// Package collision removes grasps whose gripper volume would intersect the
// observed scene.
package collision

import (
	"fmt"
	"math"

	"github.com/ayusman/hasta/internal/config"
)

// Policy selects whether collision filtering runs, and at what threshold.
// The zero value is Disabled.
type Policy struct {
	enabled   bool
	threshold float64
}

// Disabled returns the pass-through policy.
func Disabled() Policy { return Policy{} }

// Enabled returns a policy that removes grasps whose normalized occupied
// volume exceeds threshold.
func Enabled(threshold float64) (Policy, error) {
	if !(threshold > 0) || math.IsInf(threshold, 0) {
		return Policy{}, fmt.Errorf("%w: collision threshold must be positive, got %v", config.ErrInvalid, threshold)
	}
	return Policy{enabled: true, threshold: threshold}, nil
}

// PolicyFor maps the configured collision_thresh to a policy: values <= 0
// disable filtering.
func PolicyFor(threshold float64) (Policy, error) {
	if threshold <= 0 {
		return Disabled(), nil
	}
	return Enabled(threshold)
}

// IsEnabled reports whether filtering runs.
func (p Policy) IsEnabled() bool { return p.enabled }

// Threshold returns the collision threshold, or 0 when disabled.
func (p Policy) Threshold() float64 { return p.threshold }

// String implements fmt.Stringer.
func (p Policy) String() string {
	if !p.enabled {
		return "disabled"
	}
	return fmt.Sprintf("enabled(%g)", p.threshold)
}
