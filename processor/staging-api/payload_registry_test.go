package stagingapi

import (
	"encoding/json"
	"testing"
)

// TestStagingRequest_Validate verifies the per-verb validation logic.
func TestStagingRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		request StagingRequest
		wantErr bool
	}{
		{
			name:    "missing repository",
			request: StagingRequest{Verb: VerbReport},
			wantErr: true,
		},
		{
			name:    "put requires path",
			request: StagingRequest{Verb: VerbPut, Repository: "who/smart-anc@main"},
			wantErr: true,
		},
		{
			name:    "put with path",
			request: StagingRequest{Verb: VerbPut, Repository: "who/smart-anc@main", Path: "a.bpmn", Content: "<x/>"},
			wantErr: false,
		},
		{
			name:    "remove requires path",
			request: StagingRequest{Verb: VerbRemove, Repository: "who/smart-anc@main"},
			wantErr: true,
		},
		{
			name:    "rollback requires save point",
			request: StagingRequest{Verb: VerbRollback, Repository: "who/smart-anc@main"},
			wantErr: true,
		},
		{
			name:    "commit needs only repository",
			request: StagingRequest{Verb: VerbCommit, Repository: "who/smart-anc@main"},
			wantErr: false,
		},
		{
			name:    "message requires text",
			request: StagingRequest{Verb: VerbMessage, Repository: "who/smart-anc@main"},
			wantErr: true,
		},
		{
			name:    "message with text",
			request: StagingRequest{Verb: VerbMessage, Repository: "who/smart-anc@main", Message: "stage anc updates"},
			wantErr: false,
		},
		{
			name:    "unknown verb",
			request: StagingRequest{Verb: "merge", Repository: "who/smart-anc@main"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestStagingRequest_RoundTrip verifies JSON round-tripping of a request.
func TestStagingRequest_RoundTrip(t *testing.T) {
	request := &StagingRequest{
		Verb:       VerbCommit,
		Repository: "who/smart-anc@main",
		Message:    "stage anc updates",
		Override:   true,
		RequestID:  "req-1",
	}

	data, err := json.Marshal(request)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	var decoded StagingRequest
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}

	if decoded.Verb != VerbCommit || decoded.Repository != "who/smart-anc@main" {
		t.Errorf("request not round-tripped: %+v", decoded)
	}
	if !decoded.Override {
		t.Error("expected Override preserved")
	}
}

// TestStagingResult_Schema verifies the result schema matches registration.
func TestStagingResult_Schema(t *testing.T) {
	result := &StagingResult{Verb: VerbReport, Repository: "who/smart-anc@main", OK: true}

	schema := result.Schema()
	if schema.Domain != "staging" {
		t.Errorf("expected Domain=staging, got %q", schema.Domain)
	}
	if schema.Category != "staging-result" {
		t.Errorf("expected Category=staging-result, got %q", schema.Category)
	}
	if schema.Version != "v1" {
		t.Errorf("expected Version=v1, got %q", schema.Version)
	}
}

// TestSubjectToken verifies repository keys fold into one subject token.
func TestSubjectToken(t *testing.T) {
	token := subjectToken("who/smart-anc@feature/dmn.rework")
	if token != "who_smart-anc_feature_dmn_rework" {
		t.Errorf("unexpected token %q", token)
	}
}
