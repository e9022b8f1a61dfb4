package handler

import (
	"strings"

	"sanctum/internal/isolation"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// ExtractRequest is the HTTP request body for POST /v1/extract.
type ExtractRequest struct {
	ClientID       string   `json:"client_id"`
	ContextVersion int64    `json:"context_version,omitempty"`
	PolicyID       string   `json:"policy_id,omitempty"`
	PolicyName     string   `json:"policy_name,omitempty"`
	Fields         []string `json:"fields,omitempty"`

	// Parsed values (populated by Validate)
	parsedClientID id.ClientID
	parsedPolicyID id.PolicyID
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *ExtractRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.ClientID = strings.TrimSpace(r.ClientID)
	if r.ClientID == "" {
		return dErrors.New(dErrors.CodeValidation, "client_id is required")
	}
	clientID, err := id.ParseClientID(r.ClientID)
	if err != nil {
		return err
	}
	r.parsedClientID = clientID

	if r.ContextVersion < 0 {
		return dErrors.New(dErrors.CodeValidation, "context_version must not be negative")
	}

	r.PolicyID = strings.TrimSpace(r.PolicyID)
	r.PolicyName = strings.TrimSpace(r.PolicyName)
	switch {
	case r.PolicyID == "" && r.PolicyName == "":
		return dErrors.New(dErrors.CodeValidation, "policy_id or policy_name is required")
	case r.PolicyID != "" && r.PolicyName != "":
		return dErrors.New(dErrors.CodeValidation, "policy_id and policy_name are mutually exclusive")
	case r.PolicyID != "":
		policyID, err := id.ParsePolicyID(r.PolicyID)
		if err != nil {
			return err
		}
		r.parsedPolicyID = policyID
	}

	return nil
}

// Domain converts the validated request into the service request.
func (r *ExtractRequest) Domain() isolation.ExtractRequest {
	return isolation.ExtractRequest{
		ClientID:       r.parsedClientID,
		ContextVersion: r.ContextVersion,
		PolicyID:       r.parsedPolicyID,
		PolicyName:     r.PolicyName,
		Fields:         r.Fields,
	}
}
