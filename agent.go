package registry

// Agent is the tagged union of authenticated principals that may call
// Registry operations.
type Agent interface {
	// AgentID returns the stable identity stamped onto audit records and
	// PackageVersion.UploaderAgentID.
	AgentID() string
	// DisplayID returns a human-readable identity for logging and emails.
	DisplayID() string
	// Kind discriminates the concrete variant for a switch/visitor.
	Kind() AgentKind
}

// AgentKind discriminates the concrete Agent variant.
type AgentKind int

const (
	AgentUser AgentKind = iota
	AgentGithubAction
	AgentGcpServiceAccount
)

func (k AgentKind) String() string {
	switch k {
	case AgentUser:
		return "user"
	case AgentGithubAction:
		return "github-action"
	case AgentGcpServiceAccount:
		return "gcp-service-account"
	default:
		return "unknown"
	}
}

// AuthenticatedUser is an interactive human principal.
type AuthenticatedUser struct {
	UserID string
	Email  string
	// SiteAdmin is true for principals on the configured site-admin list;
	// they additionally gain managePackageOwnership.
	SiteAdmin bool
}

var _ Agent = AuthenticatedUser{}

func (u AuthenticatedUser) AgentID() string   { return "user:" + u.UserID }
func (u AuthenticatedUser) DisplayID() string { return u.Email }
func (u AuthenticatedUser) Kind() AgentKind   { return AgentUser }

// AuthenticatedGithubAction is a CI identity token minted by a code host
// for a single workflow run.
type AuthenticatedGithubAction struct {
	Repository  string // "<owner>/<repo>"
	EventName   string // e.g. "push"
	RefType     string // e.g. "tag"
	Ref         string // e.g. "refs/tags/v1.2.3"
	Environment string
}

var _ Agent = AuthenticatedGithubAction{}

func (g AuthenticatedGithubAction) AgentID() string {
	return "github:" + g.Repository
}
func (g AuthenticatedGithubAction) DisplayID() string { return g.Repository + "@" + g.Ref }
func (g AuthenticatedGithubAction) Kind() AgentKind   { return AgentGithubAction }

// AuthenticatedGcpServiceAccount is a cloud-provider workload identity
// token.
type AuthenticatedGcpServiceAccount struct {
	Email string
}

var _ Agent = AuthenticatedGcpServiceAccount{}

func (s AuthenticatedGcpServiceAccount) AgentID() string   { return "gcp:" + s.Email }
func (s AuthenticatedGcpServiceAccount) DisplayID() string { return s.Email }
func (s AuthenticatedGcpServiceAccount) Kind() AgentKind   { return AgentGcpServiceAccount }

// IsAutomated reports whether the agent is a CI or service-account
// principal. Automated agents may never create new packages and may never
// add or remove uploaders or change publisher.
func IsAutomated(a Agent) bool {
	switch a.Kind() {
	case AgentGithubAction, AgentGcpServiceAccount:
		return true
	default:
		return false
	}
}
