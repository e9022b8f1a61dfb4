package handler

import (
	"strings"

	"sanctum/internal/merge"
	id "sanctum/pkg/domain"
	dErrors "sanctum/pkg/domain-errors"
)

// MergeRequest is the HTTP request body for POST /v1/merge.
type MergeRequest struct {
	CoupleID   string `json:"couple_id"`
	PolicyID   string `json:"policy_id,omitempty"`
	PolicyName string `json:"policy_name,omitempty"`

	// Parsed values (populated by Validate)
	parsedCoupleID id.CoupleID
	parsedPolicyID id.PolicyID
}

// Validate validates and parses the request.
// Implements the Validatable interface for httputil.DecodeAndPrepare.
func (r *MergeRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	r.CoupleID = strings.TrimSpace(r.CoupleID)
	if r.CoupleID == "" {
		return dErrors.New(dErrors.CodeValidation, "couple_id is required")
	}
	coupleID, err := id.ParseCoupleID(r.CoupleID)
	if err != nil {
		return err
	}
	r.parsedCoupleID = coupleID

	r.PolicyID = strings.TrimSpace(r.PolicyID)
	r.PolicyName = strings.TrimSpace(r.PolicyName)
	if r.PolicyID != "" && r.PolicyName != "" {
		return dErrors.New(dErrors.CodeValidation, "policy_id and policy_name are mutually exclusive")
	}
	if r.PolicyID != "" {
		policyID, err := id.ParsePolicyID(r.PolicyID)
		if err != nil {
			return err
		}
		r.parsedPolicyID = policyID
	}

	return nil
}

// Domain converts the validated request into the engine request.
func (r *MergeRequest) Domain() merge.MergeRequest {
	return merge.MergeRequest{
		CoupleID:   r.parsedCoupleID,
		PolicyID:   r.parsedPolicyID,
		PolicyName: r.PolicyName,
	}
}
