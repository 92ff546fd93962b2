// Package signer implements the UploadSigner component:
// short-lived signed POST policies targeting the incoming bucket. The
// shipped implementation is a local HMAC-POST-policy signer modeled on
// the shape of a GCS/S3 POST policy document (base64 JSON policy +
// HMAC-SHA256 signature) rather than a direct cloud SDK call, so
// startUpload is exercisable and testable without a live cloud
// credential.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pubregistry/registry"
	"github.com/pubregistry/registry/internal/archivestore"
)

// Policy is a signed POST policy: the fields a client must include
// verbatim in its multipart form POST to UploadURL.
type Policy struct {
	UploadURL string            `json:"url"`
	Fields    map[string]string `json:"fields"`
	UploadID  string            `json:"-"`
}

// Signer issues Policy values for uploads into the incoming bucket.
type Signer struct {
	// UploadURL is the (constant) endpoint clients POST multipart forms
	// to, e.g. "https://storage.example.com/incoming".
	UploadURL string
	// Secret is the HMAC signing key.
	Secret []byte
	// MaxSize is the configured maximum archive size, embedded in the
	// policy as a content-length-range condition.
	MaxSize int64
	// Expiry bounds how long the policy remains valid.
	Expiry time.Duration
}

type postPolicyDocument struct {
	Expiration string         `json:"expiration"`
	Conditions []policyCondKV `json:"conditions"`
}

// policyCondKV renders either {"key": "value"} or ["content-length-range", 0, N]
// depending on which field is set; a single type keeps json.Marshal
// straightforward without a custom MarshalJSON per condition shape.
type policyCondKV struct {
	kv    map[string]string
	exact []any
}

func (c policyCondKV) MarshalJSON() ([]byte, error) {
	if c.exact != nil {
		return json.Marshal(c.exact)
	}
	return json.Marshal(c.kv)
}

// Issue returns a freshly signed Policy redirecting to redirectURL (with
// "?upload_id=<uuid>" appended) on success.
//
// Fails with *registry.Error{Kind: ErrInvalidInput} if redirectURL is
// empty; the upload-restricted check (global upload switch) is the
// caller's responsibility since it isn't a signing concern.
func (s *Signer) Issue(redirectURL string) (Policy, error) {
	if redirectURL == "" {
		return Policy{}, &registry.Error{
			Op: "signer.Issue", Kind: registry.ErrInvalidInput,
			Message: "redirectUrl is required",
		}
	}
	expiry := s.Expiry
	if expiry <= 0 || expiry > 10*time.Minute {
		expiry = 10 * time.Minute
	}
	id := uuid.NewString()
	key := archivestore.IncomingKey(id)
	successRedirect := fmt.Sprintf("%s?upload_id=%s", redirectURL, id)
	exp := time.Now().UTC().Add(expiry)

	doc := postPolicyDocument{
		Expiration: exp.Format(time.RFC3339),
		Conditions: []policyCondKV{
			{kv: map[string]string{"key": key}},
			{kv: map[string]string{"success_action_redirect": successRedirect}},
			{exact: []any{"content-length-range", 0, s.MaxSize}},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return Policy{}, fmt.Errorf("signer: marshaling policy document: %w", err)
	}
	encoded := base64.StdEncoding.EncodeToString(raw)

	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(encoded))
	signature := hex.EncodeToString(mac.Sum(nil))

	return Policy{
		UploadURL: s.UploadURL,
		UploadID:  id,
		Fields: map[string]string{
			"key":                     key,
			"success_action_redirect": successRedirect,
			"policy":                  encoded,
			"signature":               signature,
		},
	}, nil
}

// Verify checks that fields (as a client would echo them back, or as an
// object-store webhook would report them) carry a signature matching
// Secret. Used by tests and by a backend that wants to double-check a
// POST before accepting it.
func (s *Signer) Verify(policy string, signature string) bool {
	mac := hmac.New(sha256.New, s.Secret)
	mac.Write([]byte(policy))
	want := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(want), []byte(signature))
}
