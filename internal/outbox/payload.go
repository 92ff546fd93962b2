package outbox

import "encoding/json"

// EmailPayload is the JSON payload stored in an OutboxMessage of kind
// registry.OutboxEmail.
type EmailPayload struct {
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	Body    string   `json:"body"`
}

// BuildEmailPayload marshals an EmailPayload for InsertOutboxMessage.
func BuildEmailPayload(to []string, subject, body string) []byte {
	b, err := json.Marshal(EmailPayload{To: to, Subject: subject, Body: body})
	if err != nil {
		panic("outbox: marshaling EmailPayload: " + err.Error())
	}
	return b
}

// DecodeEmailPayload is the inverse of BuildEmailPayload.
func DecodeEmailPayload(raw []byte) (EmailPayload, error) {
	var p EmailPayload
	err := json.Unmarshal(raw, &p)
	return p, err
}

// JobPayload is the JSON payload stored in an OutboxMessage of kind
// registry.OutboxAnalyzeJob, OutboxDocGenJob, or
// OutboxDocGenDeprioritize.
type JobPayload struct {
	Package string `json:"package"`
	Version string `json:"version"`
}

// BuildJobPayload marshals a JobPayload for InsertOutboxMessage.
func BuildJobPayload(pkg, version string) []byte {
	b, err := json.Marshal(JobPayload{Package: pkg, Version: version})
	if err != nil {
		panic("outbox: marshaling JobPayload: " + err.Error())
	}
	return b
}

// DecodeJobPayload is the inverse of BuildJobPayload.
func DecodeJobPayload(raw []byte) (JobPayload, error) {
	var p JobPayload
	err := json.Unmarshal(raw, &p)
	return p, err
}
