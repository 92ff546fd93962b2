package registrycore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/cachelayer"
)

// VersionView is one entry in a ListVersions response: a PackageVersion
// plus the derived archive metadata the
// `/api/packages/<name>` and `/api/packages/<name>/versions/<ver>`
// endpoints need, without exposing the storage-layer types directly.
type VersionView struct {
	Version     string
	Pubspec     registry.Pubspec
	Created     time.Time
	SHA256Hex   string
	IsRetracted bool
}

// PackageView is the cacheable read model behind `listVersions`: every
// non-retracted version sorted ascending by semver, plus the
// derived latest pointer.
type PackageView struct {
	Name             string
	Versions         []VersionView
	Latest           *VersionView
	LatestPrerelease *VersionView
	IsDiscontinued   bool
	ReplacedBy       string
	IsUnlisted       bool
}

// ListVersions returns every non-retracted
// version of pkgName, ascending by semver, plus the latest/latest-
// prerelease pointers. Served from CacheLayer when possible.
func (r *Registry) ListVersions(ctx context.Context, pkgName string) (*PackageView, error) {
	const op = "Registry.ListVersions"

	cacheKey := cachelayer.VersionsKey(pkgName)
	if cached, ok, err := r.Cache.Get(ctx, cacheKey); err == nil && ok {
		var view PackageView
		if err := json.Unmarshal(cached, &view); err == nil {
			return &view, nil
		}
	}

	pkg, ok, err := r.Store.GetPackage(ctx, pkgName)
	if err != nil {
		return nil, fmt.Errorf("%s: reading package: %w", op, err)
	}
	if !ok {
		return nil, &registry.Error{Op: op, Kind: registry.ErrNotFound, Message: fmt.Sprintf("package %q not found", pkgName)}
	}
	versions, err := r.Store.ListVersions(ctx, pkgName)
	if err != nil {
		return nil, fmt.Errorf("%s: listing versions: %w", op, err)
	}

	view := &PackageView{
		Name:           pkg.Name,
		IsDiscontinued: pkg.IsDiscontinued,
		ReplacedBy:     pkg.ReplacedBy,
		IsUnlisted:     pkg.IsUnlisted,
	}
	sort.Slice(versions, func(i, j int) bool { return versionLess(versions[i], versions[j]) })
	for _, v := range versions {
		if v.IsRetracted {
			continue
		}
		vv := toVersionView(v)
		view.Versions = append(view.Versions, vv)
		if v.Version == pkg.LatestVersionKey {
			latest := vv
			view.Latest = &latest
		}
		if v.Version == pkg.LatestPrereleaseVersionKey {
			lp := vv
			view.LatestPrerelease = &lp
		}
	}

	if encoded, err := json.Marshal(view); err == nil {
		_ = r.Cache.Set(ctx, cacheKey, encoded, r.cfg.ListingCacheTTL)
	}
	return view, nil
}

// LookupVersion returns a single version's
// metadata, including its archive sha256 and retraction state.
func (r *Registry) LookupVersion(ctx context.Context, pkgName, version string) (*VersionView, error) {
	const op = "Registry.LookupVersion"
	canon, err := registry.Canonicalize(version)
	if err != nil {
		return nil, err
	}
	v, ok, err := r.Store.GetVersion(ctx, pkgName, canon)
	if err != nil {
		return nil, fmt.Errorf("%s: reading version: %w", op, err)
	}
	if !ok {
		return nil, &registry.Error{Op: op, Kind: registry.ErrNotFound, Message: fmt.Sprintf("%s %s not found", pkgName, canon)}
	}
	vv := toVersionView(v)
	return &vv, nil
}

func toVersionView(v *registry.PackageVersion) VersionView {
	return VersionView{
		Version:     v.Version,
		Pubspec:     v.Pubspec,
		Created:     v.Created,
		SHA256Hex:   fmt.Sprintf("%x", v.SHA256),
		IsRetracted: v.IsRetracted,
	}
}
