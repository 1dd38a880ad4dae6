package server

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jonathan/apply-agent/internal/runner"
	"github.com/jonathan/apply-agent/internal/types"
	"github.com/jonathan/apply-agent/internal/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &ErrValidation{Field: "jobUrl", Message: "required"}, http.StatusBadRequest},
		{"wrapped validation", fmt.Errorf("decode: %w", &ErrValidation{Message: "bad"}), http.StatusBadRequest},
		{"invalid request", fmt.Errorf("%w: domain is required", runner.ErrInvalidRequest), http.StatusBadRequest},
		{"workflow validation", workflow.Require(false, "detect_form", "jobUrl", "is required"), http.StatusBadRequest},
		{"other", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestValidationError(t *testing.T) {
	req := types.DiscoveryRequest{MaxPages: 3}
	err := validationError(req.Validate())

	var ve *ErrValidation
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "DiscoveryRequest.Domain", ve.Field)
	assert.Equal(t, `validation error: DiscoveryRequest.Domain - failed "required" check`, err.Error())

	plain := validationError(errors.New("bad input"))
	assert.Equal(t, "validation error: bad input", plain.Error())
}
