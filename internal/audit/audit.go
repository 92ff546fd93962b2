// Package audit implements the AuditLog component: an
// append-only event log keyed by package and principal. Every registry
// mutation writes exactly one record in the same MetadataStore
// transaction as the mutation it documents; this package
// only builds well-formed registry.AuditLogRecord values so every call
// site constructs the denormalized query arrays (Packages,
// PackageVersions, Publishers, Users) consistently — persistence itself
// goes through metadatastore.Tx.InsertAuditLog.
package audit

import (
	"time"

	"github.com/google/uuid"

	"github.com/pubregistry/registry"
)

// Record is a builder for one AuditLogRecord.
type Record struct {
	rec registry.AuditLogRecord
}

// New starts a Record for the given kind, agent, and human summary.
func New(kind registry.AuditKind, agent registry.Agent, summary string) *Record {
	return &Record{rec: registry.AuditLogRecord{
		ID:      uuid.NewString(),
		Kind:    kind,
		Created: time.Now().UTC(),
		AgentID: agent.AgentID(),
		Summary: summary,
		Data:    map[string]any{},
	}}
}

// Package adds name to the denormalized Packages array.
func (r *Record) Package(name string) *Record {
	r.rec.Packages = append(r.rec.Packages, name)
	return r
}

// PackageVersion adds "<name>@<version>" to the denormalized
// PackageVersions array.
func (r *Record) PackageVersion(name, version string) *Record {
	r.rec.PackageVersions = append(r.rec.PackageVersions, name+"@"+version)
	return r
}

// Publisher adds id to the denormalized Publishers array.
func (r *Record) Publisher(id string) *Record {
	if id == "" {
		return r
	}
	r.rec.Publishers = append(r.rec.Publishers, id)
	return r
}

// User adds id to the denormalized Users array.
func (r *Record) User(id string) *Record {
	if id == "" {
		return r
	}
	r.rec.Users = append(r.rec.Users, id)
	return r
}

// Set adds a key/value pair to the structured Data payload.
func (r *Record) Set(key string, value any) *Record {
	r.rec.Data[key] = value
	return r
}

// Build returns the finished record.
func (r *Record) Build() *registry.AuditLogRecord {
	return &r.rec
}
