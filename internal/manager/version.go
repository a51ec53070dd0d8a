package manager

import (
	"fmt"
	"strconv"
	"strings"
)

// semver is a parsed major.minor.patch triple. No pack example carries a
// semver-range library as a direct domain import (Masterminds/semver only
// appears transitively, via a blockchain repo's helm-templating dependency),
// so the single ">=" range bothan-api's CLI actually exposes is hand-rolled
// here instead of pulled in as a dependency.
type semver struct {
	major, minor, patch int
}

func parseSemver(s string) (semver, error) {
	s = strings.TrimPrefix(s, "v")
	parts := strings.SplitN(s, ".", 3)
	if len(parts) != 3 {
		return semver{}, fmt.Errorf("manager: invalid version %q", s)
	}

	nums := make([]int, 3)
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return semver{}, fmt.Errorf("manager: invalid version %q: %w", s, err)
		}
		nums[i] = n
	}
	return semver{major: nums[0], minor: nums[1], patch: nums[2]}, nil
}

func (v semver) less(other semver) bool {
	if v.major != other.major {
		return v.major < other.major
	}
	if v.minor != other.minor {
		return v.minor < other.minor
	}
	return v.patch < other.patch
}

// VersionRange is a single minimum-version requirement (">=min"), the only
// range shape bothan-api's CLI exposes via its registry version flag.
type VersionRange struct {
	min semver
}

func NewMinVersionRange(min string) (VersionRange, error) {
	v, err := parseSemver(min)
	if err != nil {
		return VersionRange{}, err
	}
	return VersionRange{min: v}, nil
}

func (r VersionRange) Matches(version string) (bool, error) {
	v, err := parseSemver(version)
	if err != nil {
		return false, err
	}
	return !v.less(r.min), nil
}

func (r VersionRange) String() string {
	return fmt.Sprintf(">=%d.%d.%d", r.min.major, r.min.minor, r.min.patch)
}
