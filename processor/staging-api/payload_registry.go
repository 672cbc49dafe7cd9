package stagingapi

import (
	"encoding/json"
	"fmt"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"

	"github.com/guidelab/stageground/staging"
	"github.com/guidelab/stageground/validation"
)

// Request verbs accepted on staging.request.
const (
	VerbPut        = "put"
	VerbRemove     = "remove"
	VerbMessage    = "message"
	VerbReport     = "report"
	VerbSavePoints = "savepoints"
	VerbRollback   = "rollback"
	VerbDiscard    = "discard"
	VerbCommit     = "commit"
)

// StagingRequest is published to staging.request. Repository is the
// owner/repo@branch key; the remaining fields are verb-specific.
type StagingRequest struct {
	Verb       string `json:"verb"`
	Repository string `json:"repository"`
	Path       string `json:"path,omitempty"`
	Content    string `json:"content,omitempty"`
	SavePoint  string `json:"save_point,omitempty"`
	Message    string `json:"message,omitempty"`
	Override   bool   `json:"override,omitempty"`
	RequestID  string `json:"request_id,omitempty"`
}

// Schema implements message.Payload.
func (p *StagingRequest) Schema() message.Type {
	return StagingRequestType
}

// Validate implements message.Payload.
func (p *StagingRequest) Validate() error {
	if p.Repository == "" {
		return fmt.Errorf("repository is required")
	}
	switch p.Verb {
	case VerbPut:
		if p.Path == "" {
			return fmt.Errorf("path is required for put")
		}
	case VerbRemove:
		if p.Path == "" {
			return fmt.Errorf("path is required for remove")
		}
	case VerbRollback:
		if p.SavePoint == "" {
			return fmt.Errorf("save_point is required for rollback")
		}
	case VerbMessage:
		if p.Message == "" {
			return fmt.Errorf("message is required for message")
		}
	case VerbReport, VerbSavePoints, VerbDiscard, VerbCommit:
	default:
		return fmt.Errorf("unknown verb %q", p.Verb)
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *StagingRequest) MarshalJSON() ([]byte, error) {
	type Alias StagingRequest
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *StagingRequest) UnmarshalJSON(data []byte) error {
	type Alias StagingRequest
	return json.Unmarshal(data, (*Alias)(p))
}

// StagingResult is published to staging.result.<verb>.<repository>. Exactly
// one of the outcome fields is set depending on the verb.
type StagingResult struct {
	Verb       string `json:"verb"`
	Repository string `json:"repository"`
	RequestID  string `json:"request_id,omitempty"`
	OK         bool   `json:"ok"`
	Error      string `json:"error,omitempty"`

	State          string                  `json:"state,omitempty"`
	Report         *validation.Report      `json:"report,omitempty"`
	SavePoints     []staging.SavePointInfo `json:"save_points,omitempty"`
	CommitID       string                  `json:"commit_id,omitempty"`
	DivergentPaths []string                `json:"divergent_paths,omitempty"`
	Overridden     bool                    `json:"overridden,omitempty"`
}

// Schema implements message.Payload.
func (p *StagingResult) Schema() message.Type {
	return StagingResultType
}

// Validate implements message.Payload.
func (p *StagingResult) Validate() error {
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *StagingResult) MarshalJSON() ([]byte, error) {
	type Alias StagingResult
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *StagingResult) UnmarshalJSON(data []byte) error {
	type Alias StagingResult
	return json.Unmarshal(data, (*Alias)(p))
}

// StagingRequestType is the message type for staging requests.
var StagingRequestType = message.Type{
	Domain:   "staging",
	Category: "staging-request",
	Version:  "v1",
}

// StagingResultType is the message type for staging results.
var StagingResultType = message.Type{
	Domain:   "staging",
	Category: "staging-result",
	Version:  "v1",
}

func init() {
	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "staging",
		Category:    "staging-request",
		Version:     "v1",
		Description: "Staging request — edit, report, rollback, or commit a session",
		Factory:     func() any { return &StagingRequest{} },
	}); err != nil {
		panic("failed to register StagingRequest: " + err.Error())
	}

	if err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "staging",
		Category:    "staging-result",
		Version:     "v1",
		Description: "Staging result — outcome of one staging operation",
		Factory:     func() any { return &StagingResult{} },
	}); err != nil {
		panic("failed to register StagingResult: " + err.Error())
	}
}
