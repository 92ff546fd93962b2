package registry

import (
	"errors"
	"strings"
)

// Error is the registry error domain type.
//
// Components should create an Error at the system boundary (a database
// query, an object-store call, a request-body decode) and intermediate
// layers should not wrap in another Error except to add [ErrorKind]
// information. Use [fmt.Errorf] with a "%w" verb in preference to creating
// a containing Error.
//
// Errors coming from registry components should be inspectable as
// ([errors.As]) an *Error at some point in the error chain. The HTTP layer
// maps [ErrorKind], and for ErrPackageRejected the Reason, to a status
// code and response body.
type Error struct {
	Inner   error
	Kind    ErrorKind
	Reason  string // sub-code, e.g. "ArchiveTooLarge", "VersionExists"
	Message string
	Op      string
}

// Assert this implements all the cool features.
var (
	_ error                       = (*Error)(nil)
	_ interface{ Is(error) bool } = (*Error)(nil)
	_ interface{ Unwrap() error } = (*Error)(nil)
)

// Error implements error.
func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(" ")
	}
	b.WriteString("[")
	switch e.Kind {
	case ErrMissingAuthentication, ErrInvalidInput, ErrPackageRejected,
		ErrAuthorization, ErrNotFound, ErrNotAcceptable, ErrOperationForbidden,
		ErrAlreadyExists, ErrInternal, ErrTransient:
		b.WriteString(string(e.Kind))
	default:
		b.WriteString("???")
	}
	if e.Reason != "" {
		b.WriteString("/")
		b.WriteString(e.Reason)
	}
	b.WriteString("]: ")
	if e.Message != "" {
		b.WriteString(e.Message)
	}
	if e.Message != "" && e.Inner != nil {
		b.WriteString(": ")
	}
	if e.Op == "" && e.Message == "" {
		b.Reset()
	}
	if e.Inner != nil {
		b.WriteString(e.Inner.Error())
	}
	return b.String()
}

// Is enables [errors.Is].
//
// It compares the error kind. Callers should compare against a declared
// [ErrorKind] over a specific error.
func (e *Error) Is(kind error) bool {
	return errors.Is(e.Kind, kind)
}

// Unwrap enables [errors.Unwrap].
func (e *Error) Unwrap() error {
	return e.Inner
}

// ErrorKind represents classes of errors to be checked against.
//
// If an error is unsure which kind to use, ErrInternal should be used.
type ErrorKind string

// Error implements error.
func (k ErrorKind) Error() string { return string(k) }

// Defined error kinds. The HTTP status each kind maps to is documented
// next to it.
var (
	ErrMissingAuthentication = ErrorKind("missing-authentication")  // 401
	ErrInvalidInput          = ErrorKind("invalid-input")           // 400
	ErrPackageRejected       = ErrorKind("package-rejected")        // 400
	ErrAuthorization         = ErrorKind("authorization-exception") // 403
	ErrNotFound              = ErrorKind("not-found")               // 404
	ErrNotAcceptable         = ErrorKind("not-acceptable")          // 406
	ErrOperationForbidden    = ErrorKind("operation-forbidden")     // 409
	ErrAlreadyExists         = ErrorKind("already-exists")          // 409
	ErrInternal              = ErrorKind("internal")                // 500

	// ErrTransient marks an error as safe to retry (optimistic-concurrency
	// conflicts on the metadata store, connection resets). Used only with
	// errors.Is inside internal/retry; never surfaced to an HTTP caller
	// directly.
	ErrTransient = ErrorKind("transient")
)

// Well-known Reason values for ErrPackageRejected and ErrAuthorization.
const (
	ReasonArchiveEmpty       = "ArchiveEmpty"
	ReasonArchiveTooLarge    = "ArchiveTooLarge"
	ReasonVersionExists      = "VersionExists"
	ReasonVersionDeleted     = "VersionDeleted"
	ReasonMaxVersionsReached = "MaxVersionsReached"
	ReasonSimilarToActive    = "SimilarToActive"
	ReasonSimilarToModerated = "SimilarToModerated"
	ReasonNameReserved       = "NameReserved"
	ReasonIsBlocked          = "IsBlocked"

	ReasonUserCannotUploadNewVersion = "UserCannotUploadNewVersion"
	ReasonUserCannotChangeUploaders  = "UserCannotChangeUploaders"
	ReasonGithubActionIssue          = "GithubActionIssue"
	ReasonServiceAccountIssue        = "ServiceAccountPublishingIssue"
	ReasonNotAdminForPackage         = "UserIsNotAdminForPackage"

	ReasonLastUploaderRemove       = "LastUploaderRemove"
	ReasonSelfRemovalNotAllowed    = "SelfRemovalNotAllowed"
	ReasonPublisherOwnedNoUploader = "PublisherOwnedNoUploader"

	ReasonUploadRestricted      = "UploadRestricted"
	ReasonUploaderAlreadyExists = "UploaderAlreadyExists"
)
