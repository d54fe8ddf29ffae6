package launch

// Limits applied by Validate. They match the defaults WebGPU guarantees for
// a single dispatch dimension.
const (
	MaxLanesPerGroup = 256
	MaxGroups        = 65535
)

// Geometry describes a one-dimensional launch: Groups execution groups of
// Lanes lanes each.
type Geometry struct {
	Groups int
	Lanes  int
}

// Total returns the number of lanes across all groups.
func (g Geometry) Total() int {
	return g.Groups * g.Lanes
}

// Validate reports an invalid-configuration error for geometries no device
// can run.
func (g Geometry) Validate() error {
	if g.Groups < 1 || g.Groups > MaxGroups {
		return Errorf(StatusInvalidConfiguration, "groups=%d out of range [1,%d]", g.Groups, MaxGroups)
	}
	if g.Lanes < 1 || g.Lanes > MaxLanesPerGroup {
		return Errorf(StatusInvalidConfiguration, "lanes=%d out of range [1,%d]", g.Lanes, MaxLanesPerGroup)
	}
	return nil
}
