package registry

import (
	"github.com/Masterminds/semver/v3"
)

// compareSemver returns -1, 0, or 1 per a.Compare(b). Unparsable versions
// fall back to a plain string comparison so a malformed manifest version
// never panics an aggregate operation.
func compareSemver(a, b string) int {
	va, errA := semver.NewVersion(a)
	vb, errB := semver.NewVersion(b)
	if errA != nil || errB != nil {
		switch {
		case a < b:
			return -1
		case a > b:
			return 1
		default:
			return 0
		}
	}
	return va.Compare(vb)
}
