package types

import (
	"sort"
	"strings"
)

// DeviceSet is an ordered collection of unique canonical block device
// paths. Construction de-duplicates and sorts lexicographically, so for a
// given set of devices the iteration order, and with it the raid member
// order, never depends on the order discovery happened to produce them.
type DeviceSet struct {
	paths []string
}

// NewDeviceSet builds a DeviceSet from raw paths. Empty strings are
// dropped, duplicates collapse to one entry.
func NewDeviceSet(paths ...string) DeviceSet {
	seen := make(map[string]struct{}, len(paths))
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	sort.Strings(out)
	return DeviceSet{paths: out}
}

func (s DeviceSet) Len() int {
	return len(s.paths)
}

func (s DeviceSet) Empty() bool {
	return len(s.paths) == 0
}

// Paths returns the members in set order. The slice is a copy, mutating
// it cannot change the set.
func (s DeviceSet) Paths() []string {
	out := make([]string, len(s.paths))
	copy(out, s.paths)
	return out
}

// First returns the sole interesting member for single-device setups, or
// "" when the set is empty.
func (s DeviceSet) First() string {
	if len(s.paths) == 0 {
		return ""
	}
	return s.paths[0]
}

func (s DeviceSet) String() string {
	return strings.Join(s.paths, " ")
}
