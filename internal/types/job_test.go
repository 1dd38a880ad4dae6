//nolint:revive // types is a standard Go package name pattern
package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"drops fragment", "https://example.com/jobs/1#apply", "https://example.com/jobs/1"},
		{"drops trailing slash", "https://example.com/jobs/1/", "https://example.com/jobs/1"},
		{"lowercases host", "HTTPS://Example.COM/Jobs", "https://example.com/Jobs"},
		{"root path", "https://example.com/", "https://example.com"},
		{"keeps query", "https://example.com/jobs?page=2", "https://example.com/jobs?page=2"},
		{"not a url", "  not a url ", "not a url"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalURL(tt.input))
		})
	}
}

func TestJobID_StableAcrossEquivalentURLs(t *testing.T) {
	a := JobID("https://example.com/jobs/1")
	b := JobID("https://EXAMPLE.com/jobs/1/#top")
	c := JobID("https://example.com/jobs/2")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 36)
}

func TestDomainOf(t *testing.T) {
	assert.Equal(t, "example.com", DomainOf("https://www.example.com/jobs"))
	assert.Equal(t, "boards.greenhouse.io", DomainOf("https://boards.greenhouse.io/acme/jobs/1"))
	assert.Equal(t, "", DomainOf("::bad"))
}

func TestMergeStatus(t *testing.T) {
	tests := []struct {
		name     string
		existing JobStatus
		incoming JobStatus
		expected JobStatus
	}{
		{"new record", "", StatusDiscovered, StatusDiscovered},
		{"rediscovered applied job keeps applied", StatusApplied, StatusDiscovered, StatusApplied},
		{"rediscovered failed job keeps failed", StatusFailed, StatusDiscovered, StatusFailed},
		{"applied overwrites processing", StatusProcessing, StatusApplied, StatusApplied},
		{"retry after failure", StatusFailed, StatusProcessing, StatusProcessing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, MergeStatus(tt.existing, tt.incoming))
		})
	}
}

func TestJobStatus_Valid(t *testing.T) {
	assert.True(t, StatusApplied.Valid())
	assert.False(t, JobStatus("archived").Valid())
}
