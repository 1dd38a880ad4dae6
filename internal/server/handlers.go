package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jonathan/apply-agent/internal/runner"
	"github.com/jonathan/apply-agent/internal/types"
)

type validatable interface {
	Validate() error
}

// decode reads a JSON body into dst and validates it.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst validatable) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return &ErrValidation{Message: "request body is empty"}
		}
		return &ErrValidation{Message: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	if err := dst.Validate(); err != nil {
		return validationError(err)
	}
	return nil
}

// handleApplySingle runs one application. A run that ends without submitting is still a 200 with
// success false; the message says why.
func (s *Server) handleApplySingle(w http.ResponseWriter, r *http.Request) {
	var req types.SingleApplicationRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorResponse(w, err)
		return
	}

	outcome, err := s.runner.Apply(r.Context(), runner.ApplyRequest{
		JobURL:         req.JobURL,
		Candidate:      req.CandidateData,
		JobDescription: req.JobDescription,
		DryRun:         req.DryRun,
	})
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	resp := types.APIResponse{Success: outcome.Success(), Data: outcome}
	if !resp.Success {
		resp.Error = string(outcome.Status)
		resp.Message = outcome.Message()
	}
	s.jsonResponse(w, http.StatusOK, resp)
}

// handleApplyBatch runs applications for every URL. Per-URL failures are reported in the results.
func (s *Server) handleApplyBatch(w http.ResponseWriter, r *http.Request) {
	var req types.BatchApplicationRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorResponse(w, err)
		return
	}

	result := s.runner.ApplyBatch(r.Context(), req.JobURLs, req.CandidateData, req.DryRun)
	s.jsonResponse(w, http.StatusOK, types.APIResponse{Success: true, Data: result})
}

func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	var req types.DiscoveryRequest
	if err := s.decode(w, r, &req); err != nil {
		s.errorResponse(w, err)
		return
	}

	result, err := s.runner.Discover(r.Context(), runner.DiscoverRequest{
		Domain:     req.Domain,
		Filters:    req.Filters,
		ConfigPath: req.ConfigPath,
		MaxPages:   req.MaxPages,
	})
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	resp := types.APIResponse{Success: true, Data: result}
	if len(result.Errors) > 0 {
		resp.Message = strings.Join(result.Errors, "; ")
	}
	s.jsonResponse(w, http.StatusOK, resp)
}
