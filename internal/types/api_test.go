//nolint:revive // types is a standard Go package name pattern
package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingleApplicationRequest_Validation(t *testing.T) {
	tests := []struct {
		name    string
		request SingleApplicationRequest
		wantErr bool
	}{
		{
			name:    "valid request",
			request: SingleApplicationRequest{JobURL: "https://example.com/jobs/1", CandidateData: Candidate{Name: "Jane Smith"}},
		},
		{
			name:    "missing url",
			request: SingleApplicationRequest{CandidateData: Candidate{Name: "Jane Smith"}},
			wantErr: true,
		},
		{
			name:    "malformed url",
			request: SingleApplicationRequest{JobURL: "not a url"},
			wantErr: true,
		},
		{
			name:    "invalid candidate email",
			request: SingleApplicationRequest{JobURL: "https://example.com/jobs/1", CandidateData: Candidate{Email: "nope"}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.request.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBatchApplicationRequest_Validation(t *testing.T) {
	assert.Error(t, (&BatchApplicationRequest{}).Validate())
	assert.Error(t, (&BatchApplicationRequest{JobURLs: []string{"https://example.com/1", "bad"}}).Validate())
	assert.NoError(t, (&BatchApplicationRequest{JobURLs: []string{"https://example.com/1"}}).Validate())
}

func TestDiscoveryRequest_Validation(t *testing.T) {
	assert.Error(t, (&DiscoveryRequest{}).Validate())
	assert.Error(t, (&DiscoveryRequest{Domain: "example.com", MaxPages: 500}).Validate())
	assert.NoError(t, (&DiscoveryRequest{Domain: "example.com", Filters: map[string]string{"keywords": "go"}}).Validate())
}

func TestNewBatchSummary(t *testing.T) {
	s := NewBatchSummary(3, 2)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Successful)
	assert.Equal(t, 1, s.Failed)
	assert.InDelta(t, 66.67, s.SuccessRate, 0.001)

	empty := NewBatchSummary(0, 0)
	assert.Equal(t, 0.0, empty.SuccessRate)
}
