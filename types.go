package registry

import "time"

// Package is a published package aggregate, identified by Name.
//
// Name is compared case-insensitively (see [SimilarityKey]) but stored as
// first-registered casing. Exactly one of Uploaders or PublisherID is set
// at rest.
type Package struct {
	Name    string
	Created time.Time
	Updated time.Time

	// LatestVersionKey and LatestPrereleaseVersionKey reference live
	// PackageVersion rows under this Package; see [SelectLatest].
	LatestVersionKey           string
	LatestPrereleaseVersionKey string

	Uploaders   []string // user ids; empty iff PublisherID != ""
	PublisherID string

	IsDiscontinued bool
	IsUnlisted     bool
	IsBlocked      bool
	ReplacedBy     string // only meaningful when IsDiscontinued

	VersionCount int

	// DeletedVersions lists canonical version strings ever hard-deleted.
	// They may never be re-used.
	DeletedVersions map[string]struct{}

	AutomatedPublishing AutomatedPublishing
}

// HasUploader reports whether userID currently holds uploader rights on p.
func (p *Package) HasUploader(userID string) bool {
	for _, u := range p.Uploaders {
		if u == userID {
			return true
		}
	}
	return false
}

// AutomatedPublishing holds the per-package configuration that lets CI or
// a cloud service account publish without an interactive user.
type AutomatedPublishing struct {
	GitHub GitHubPublishing
	GCP    GCPPublishing
}

// GitHubPublishing configures the AuthenticatedGithubAction principal for a
// package.
type GitHubPublishing struct {
	Enabled            bool
	Repository         string // "<owner>/<repo>"
	TagPattern         string // contains exactly one "{{version}}"
	RequireEnvironment bool
	Environment        string
}

// GCPPublishing configures the AuthenticatedGcpServiceAccount principal for
// a package.
type GCPPublishing struct {
	Enabled             bool
	ServiceAccountEmail string // must end in ".gserviceaccount.com"
}

// PackageVersion is an immutable (save for retraction) version record,
// child of a Package, identified by its canonical semver string.
type PackageVersion struct {
	PackageName string
	Version     string // canonical form, see Canonicalize
	Pubspec     Pubspec
	Libraries   []string // public library paths under lib/, excluding lib/src/
	Created     time.Time

	UploaderAgentID      string // frozen at publish
	PublisherIDAtPublish string // frozen at publish

	SHA256 [32]byte

	IsRetracted bool
	RetractedAt time.Time
}

// IsPrerelease reports whether the canonical version string has a
// pre-release component.
func (v *PackageVersion) IsPrerelease() bool {
	return isPrereleaseString(v.Version)
}

// PackageVersionAsset is one extracted archive asset (readme, changelog,
// example, license, or the pubspec itself), child of a PackageVersion.
type PackageVersionAsset struct {
	PackageName string
	Version     string
	Kind        AssetKind
	Path        string
	TextContent string // truncated to maxAssetBytes
	Truncated   bool
}

// AssetKind enumerates the asset kinds a PackageVersion may carry.
type AssetKind string

const (
	AssetPubspec   AssetKind = "pubspec"
	AssetReadme    AssetKind = "readme"
	AssetChangelog AssetKind = "changelog"
	AssetExample   AssetKind = "example"
	AssetLicense   AssetKind = "license"
)

// Pubspec is the parsed package manifest.
type Pubspec struct {
	Name            string
	Version         string
	Description     string
	Homepage        string
	Repository      string
	License         string
	SDKConstraint   string
	Dependencies    map[string]Dependency
	DevDependencies map[string]Dependency
	Executables     map[string]string
}

// Dependency is a single dependency entry from a pubspec.
//
// Exactly one of VersionConstraint, GitURL, or PathDependency should be
// set. GitURL dependencies are rejected by the archive parser
// but are still modeled so the reject reason can cite the offending
// dependency name.
type Dependency struct {
	VersionConstraint string
	GitURL            string
	PathDependency    string
	Hosted            string
}

// AuditLogRecord is an immutable event. Every state-mutating Registry
// operation writes exactly one of these in the same transaction as the
// mutation.
type AuditLogRecord struct {
	ID      string
	Kind    AuditKind
	Created time.Time
	AgentID string
	Summary string
	Data    map[string]any

	Packages        []string
	PackageVersions []string // "<name>@<version>"
	Publishers      []string
	Users           []string
}

// AuditKind enumerates AuditLogRecord.Kind values.
type AuditKind string

const (
	AuditPackagePublished           AuditKind = "packagePublished"
	AuditOptionsChanged             AuditKind = "packageOptionsUpdated"
	AuditVersionRetracted           AuditKind = "packageVersionRetracted"
	AuditVersionUnretracted         AuditKind = "packageVersionUnretracted"
	AuditPublisherChanged           AuditKind = "packagePublisherChanged"
	AuditUploaderInvited            AuditKind = "uploaderInvited"
	AuditUploaderRemoved            AuditKind = "uploaderRemoved"
	AuditAutomatedPublishingChanged AuditKind = "automatedPublishingChanged"
	AuditVersionHardDeleted         AuditKind = "packageVersionHardDeleted"
	AuditPackageTombstoned          AuditKind = "packageTombstoned"
)

// ModeratedName tombstones a hard-removed package name. It blocks
// re-creation and participates in the similarity check.
type ModeratedName struct {
	Name          string
	SimilarityKey string
	Reason        string
	Created       time.Time
}

// OutboxMessage is a durable, at-least-once queued effect: an email or a
// post-upload job. Writers append one inside the same transaction as the
// event that causes it.
type OutboxMessage struct {
	ID            string
	Kind          OutboxKind
	Payload       []byte
	Attempts      int
	NextAttemptAt time.Time
	ExpiresAt     time.Time
	DeliveredAt   time.Time // zero until delivered
}

// OutboxKind enumerates OutboxMessage.Kind values.
type OutboxKind string

const (
	OutboxEmail              OutboxKind = "email"
	OutboxAnalyzeJob         OutboxKind = "analyze-job"
	OutboxDocGenJob          OutboxKind = "doc-gen-job"
	OutboxDocGenDeprioritize OutboxKind = "doc-gen-deprioritize"
)

const maxAssetBytes = 128 * 1024
