package registry

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Canonicalize parses s as a semantic version and re-emits it with
// major/minor/patch stripped of leading zeros, pre-release identifiers
// joined by ".", and build metadata identifiers joined by ".".
//
// Canonicalize is a fixed point: Canonicalize(Canonicalize(s)) ==
// Canonicalize(s) for any s that parses, because the output depends only
// on the parsed (major, minor, patch, prerelease, metadata) tuple and
// re-parsing that output yields the identical tuple.
func Canonicalize(s string) (string, error) {
	v, err := semver.NewVersion(s)
	if err != nil {
		return "", &Error{
			Op:      "Canonicalize",
			Kind:    ErrInvalidInput,
			Message: fmt.Sprintf("%q is not a valid semantic version", s),
			Inner:   err,
		}
	}
	out := fmt.Sprintf("%d.%d.%d", v.Major(), v.Minor(), v.Patch())
	if p := v.Prerelease(); p != "" {
		out += "-" + p
	}
	if m := v.Metadata(); m != "" {
		out += "+" + m
	}
	return out, nil
}

// isPrereleaseString reports whether a canonical version string carries a
// pre-release component.
func isPrereleaseString(canonical string) bool {
	v, err := semver.NewVersion(canonical)
	if err != nil {
		return false
	}
	return v.Prerelease() != ""
}

// CompatibleWithSDK reports whether sdkVersion satisfies the pubspec SDK
// constraint string. An empty
// constraint is treated as unconstrained (always compatible).
func CompatibleWithSDK(constraint, sdkVersion string) (bool, error) {
	if constraint == "" {
		return true, nil
	}
	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, &Error{
			Op:      "CompatibleWithSDK",
			Kind:    ErrInvalidInput,
			Message: fmt.Sprintf("invalid SDK constraint %q", constraint),
			Inner:   err,
		}
	}
	v, err := semver.NewVersion(sdkVersion)
	if err != nil {
		return false, &Error{
			Op:      "CompatibleWithSDK",
			Kind:    ErrInvalidInput,
			Message: fmt.Sprintf("invalid SDK version %q", sdkVersion),
			Inner:   err,
		}
	}
	ok, _ := c.Validate(v)
	return ok, nil
}

// CompareVersions orders two canonical version strings per semver
// precedence. It panics if either fails to parse; callers must only pass
// strings that have already round-tripped through Canonicalize.
func CompareVersions(a, b string) int {
	va, err := semver.NewVersion(a)
	if err != nil {
		panic(fmt.Sprintf("registry: %q is not a canonical version: %v", a, err))
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		panic(fmt.Sprintf("registry: %q is not a canonical version: %v", b, err))
	}
	return va.Compare(vb)
}
