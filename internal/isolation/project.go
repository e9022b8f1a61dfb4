package isolation

import (
	"sanctum/internal/clientcontext"
	"sanctum/internal/policy"
	dErrors "sanctum/pkg/domain-errors"
	strutil "sanctum/pkg/platform/strings"
)

// Project filters a client context through a whitelist policy. Pure: no I/O,
// no audit, deterministic for identical inputs.
//
// With requested empty, every policy-allowed field present in the context is
// projected; context fields the policy does not list are absent from the
// view, which is the normal case, not an error. With requested non-empty,
// strict mode fails the whole call on any requested name outside the
// whitelist, permissive mode drops such names silently. A field whose
// sensitivity exceeds the policy cap fails the call in either mode: a policy
// whitelisting data above its own cap is misconfigured and must be loud.
func Project(cc *clientcontext.ClientContext, pol *policy.WhitelistPolicy, requested []string) (*AbstractedView, error) {
	if cc == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "projection requires a loaded client context")
	}
	if pol == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "projection requires a policy")
	}
	if !pol.Active {
		return nil, dErrors.Newf(dErrors.CodePolicyViolation, "policy %s v%d is not active", pol.Name, pol.Version)
	}

	var names []string
	if len(requested) == 0 {
		names = pol.AllowedFields
	} else {
		for _, name := range strutil.DedupeAndTrim(requested) {
			if !pol.Allows(name) {
				if pol.Mode == policy.ModeStrict {
					return nil, dErrors.Newf(dErrors.CodePolicyViolation,
						"field %q is not allowed by policy %s v%d", name, pol.Name, pol.Version)
				}
				continue
			}
			names = append(names, name)
		}
	}

	fields := make(map[string]clientcontext.Field, len(names))
	for _, name := range names {
		field, ok := cc.Fields[name]
		if !ok {
			continue
		}
		if field.Sensitivity.Exceeds(pol.MaxSensitivity) {
			return nil, dErrors.Newf(dErrors.CodePolicyViolation,
				"field %q sensitivity %s exceeds policy %s cap %s", name, field.Sensitivity, pol.Name, pol.MaxSensitivity)
		}
		fields[name] = field
	}

	return &AbstractedView{
		ClientID:       cc.ClientID,
		ContextVersion: cc.Version,
		PolicyName:     pol.Name,
		PolicyVersion:  pol.Version,
		Fields:         fields,
	}, nil
}
