package signer

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIssue(t *testing.T) {
	s := &Signer{
		UploadURL: "https://storage.example.com/incoming",
		Secret:    []byte("secret"),
		MaxSize:   100 << 20,
		Expiry:    10 * time.Minute,
	}
	p, err := s.Issue("https://pub.example/api/packages/versions/newUploadFinish")
	require.NoError(t, err)
	require.NotEmpty(t, p.UploadID)
	require.True(t, strings.HasPrefix(p.Fields["key"], "tmp/"))
	require.Contains(t, p.Fields["success_action_redirect"], "upload_id="+p.UploadID)
	require.True(t, s.Verify(p.Fields["policy"], p.Fields["signature"]))
	require.False(t, s.Verify(p.Fields["policy"], "deadbeef"))
}

func TestIssueRequiresRedirect(t *testing.T) {
	s := &Signer{Secret: []byte("secret"), MaxSize: 1024}
	_, err := s.Issue("")
	require.Error(t, err)
}

func TestIssueClampsExpiry(t *testing.T) {
	s := &Signer{Secret: []byte("secret"), MaxSize: 1024, Expiry: time.Hour}
	p, err := s.Issue("https://pub.example/finish")
	require.NoError(t, err)
	require.NotEmpty(t, p.Fields["policy"])

	raw, err := base64.StdEncoding.DecodeString(p.Fields["policy"])
	require.NoError(t, err)
	var doc struct {
		Expiration string `json:"expiration"`
	}
	require.NoError(t, json.Unmarshal(raw, &doc))
	exp, err := time.Parse(time.RFC3339, doc.Expiration)
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(10*time.Minute), exp, 5*time.Second)
}
