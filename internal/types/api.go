//nolint:revive // types is a standard Go package name pattern
package types

import "github.com/go-playground/validator/v10"

// validate is shared by the request DTOs; it caches struct metadata and is safe for concurrent use.
var validate = validator.New(validator.WithRequiredStructEnabled())

// SingleApplicationRequest is the body of POST /job-application/single
type SingleApplicationRequest struct {
	JobURL         string    `json:"jobUrl" validate:"required,url"`
	CandidateData  Candidate `json:"candidateData"`
	JobDescription string    `json:"jobDescription,omitempty"`
	DryRun         bool      `json:"dryRun,omitempty"`
}

// BatchApplicationRequest is the body of POST /job-application/batch
type BatchApplicationRequest struct {
	JobURLs       []string  `json:"jobUrls" validate:"required,min=1,dive,required,url"`
	CandidateData Candidate `json:"candidateData"`
	DryRun        bool      `json:"dryRun,omitempty"`
}

// DiscoveryRequest is the body of POST /job-discovery
type DiscoveryRequest struct {
	Domain     string            `json:"domain" validate:"required"`
	Filters    map[string]string `json:"filters,omitempty"`
	ConfigPath string            `json:"configPath,omitempty"`
	MaxPages   int               `json:"maxPages,omitempty" validate:"gte=0,lte=50"`
}

// Validate validates the SingleApplicationRequest using the validator.
func (r *SingleApplicationRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the BatchApplicationRequest using the validator.
func (r *BatchApplicationRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the DiscoveryRequest using the validator.
func (r *DiscoveryRequest) Validate() error {
	return validate.Struct(r)
}

// APIResponse is the envelope every job endpoint responds with
type APIResponse struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Message string `json:"message,omitempty"`
}

// BatchSummary aggregates a batch application run. SuccessRate is a percentage.
type BatchSummary struct {
	Total       int     `json:"total"`
	Successful  int     `json:"successful"`
	Failed      int     `json:"failed"`
	SuccessRate float64 `json:"successRate"`
}

// NewBatchSummary computes the summary for a batch; the rate is rounded to two decimals.
func NewBatchSummary(total, successful int) BatchSummary {
	s := BatchSummary{Total: total, Successful: successful, Failed: total - successful}
	if total > 0 {
		rate := float64(successful) / float64(total) * 100
		s.SuccessRate = float64(int(rate*100+0.5)) / 100
	}
	return s
}

// DiscoveryResult is the response data of a discovery run
type DiscoveryResult struct {
	ProcessedURLs []string    `json:"processedUrls"`
	ScrapedJobs   []JobRecord `json:"scrapedJobs"`
	Count         int         `json:"count"`
	Errors        []string    `json:"errors,omitempty"`
}
