package registrycore

import "context"

// PublisherDirectory resolves publisher (organizational owner)
// membership. Publishers themselves are out of this core's scope (the
// Registry references a publisher only by id); a
// real implementation backs this with whatever account/organization
// service owns publisher membership.
type PublisherDirectory interface {
	// IsAdmin reports whether userID administers publisherID.
	IsAdmin(ctx context.Context, userID, publisherID string) (bool, error)
	// AdminEmails lists the notification addresses for publisherID's
	// admins.
	AdminEmails(ctx context.Context, publisherID string) ([]string, error)
}

// AccountDirectory resolves between the opaque userId Registry persists
// and the email address clients submit.
type AccountDirectory interface {
	// ResolveUserByEmail looks up the userId for an uploader-invite
	// email. ok is false if no account matches.
	ResolveUserByEmail(ctx context.Context, email string) (userID string, ok bool, err error)
	// Email returns the display email for userID, for notifications and
	// audit-record display only.
	Email(ctx context.Context, userID string) (string, error)
}
