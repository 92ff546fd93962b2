package registrycore

import (
	"sort"

	"github.com/pubregistry/registry"
)

// selectLatest picks the latest and latest-prerelease versions over
// the non-retracted versions of one package for a given default SDK
// version. It is deterministic: ties are broken by publish time, then
// by lexicographic version string.
func selectLatest(versions []*registry.PackageVersion, sdkVersion string) (latest, latestPrerelease string, err error) {
	var live []*registry.PackageVersion
	for _, v := range versions {
		if !v.IsRetracted {
			live = append(live, v)
		}
	}
	if len(live) == 0 {
		return "", "", nil
	}

	sort.Slice(live, func(i, j int) bool {
		return versionLess(live[i], live[j])
	})

	compatible := make([]*registry.PackageVersion, 0, len(live))
	for _, v := range live {
		if sdkVersion == "" {
			break // no SDK version to test against: no version counts as compatible
		}
		ok, cerr := registry.CompatibleWithSDK(v.Pubspec.SDKConstraint, sdkVersion)
		if cerr != nil {
			continue // an unparseable constraint is simply treated as incompatible
		}
		if ok {
			compatible = append(compatible, v)
		}
	}

	latestV := pickLatestStable(compatible)
	if latestV == nil {
		latestV = pickLatestStable(live)
	}
	if latestV == nil {
		latestV = newest(compatible)
	}
	if latestV == nil {
		latestV = newest(live)
	}
	latest = latestV.Version

	prereleaseV := newestPrerelease(live)
	if prereleaseV != nil && registry.CompareVersions(prereleaseV.Version, latest) > 0 {
		latestPrerelease = prereleaseV.Version
	} else {
		latestPrerelease = latest
	}
	return latest, latestPrerelease, nil
}

// versionLess orders ascending by semver precedence, breaking ties by
// publish time and then the raw version string.
func versionLess(a, b *registry.PackageVersion) bool {
	if c := registry.CompareVersions(a.Version, b.Version); c != 0 {
		return c < 0
	}
	if !a.Created.Equal(b.Created) {
		return a.Created.Before(b.Created)
	}
	return a.Version < b.Version
}

func newest(vs []*registry.PackageVersion) *registry.PackageVersion {
	if len(vs) == 0 {
		return nil
	}
	return vs[len(vs)-1]
}

func pickLatestStable(vs []*registry.PackageVersion) *registry.PackageVersion {
	for i := len(vs) - 1; i >= 0; i-- {
		if !vs[i].IsPrerelease() {
			return vs[i]
		}
	}
	return nil
}

func newestPrerelease(vs []*registry.PackageVersion) *registry.PackageVersion {
	for i := len(vs) - 1; i >= 0; i-- {
		if vs[i].IsPrerelease() {
			return vs[i]
		}
	}
	return nil
}
