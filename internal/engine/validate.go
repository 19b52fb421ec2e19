package engine

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"golang.org/x/text/unicode/norm"

	"github.com/roach88/bountyboard/internal/domain"
)

//go:embed schema.cue
var payloadSchema string

// Validator checks activity payloads against the embedded CUE schema.
//
// Thread-safety: a cue.Context is not safe for concurrent use, so Validate
// serializes callers.
type Validator struct {
	mu     sync.Mutex
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the payload schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(payloadSchema, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile payload schema: %w", err)
	}
	return &Validator{ctx: ctx, schema: schema}, nil
}

// Normalize returns req with free-text fields trimmed and NFC-normalized, so
// visually identical titles from either front-end store identically.
func Normalize(req domain.Request) domain.Request {
	p := &req.Payload
	p.Title = normalizeText(p.Title)
	p.Description = normalizeText(p.Description)
	p.Criteria = normalizeText(p.Criteria)
	p.Pitch = normalizeText(p.Pitch)
	p.Notes = normalizeText(p.Notes)
	p.URL = strings.TrimSpace(p.URL)
	if len(p.Tags) > 0 {
		tags := make([]string, 0, len(p.Tags))
		for _, t := range p.Tags {
			tags = append(tags, strings.ToLower(normalizeText(t)))
		}
		p.Tags = tags
	}
	return req
}

func normalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Validate checks the request envelope and the activity payload. Returns a
// ValidationFailure describing the first problem found.
func (v *Validator) Validate(req domain.Request) error {
	if !req.Activity.Valid() {
		return domain.NewUnrecognizedActivity(string(req.Activity))
	}
	if req.Origin != domain.OriginInternal && req.Origin != domain.OriginExternal {
		return domain.NewValidationError(req.Activity, "origin must be internal or external")
	}
	if req.Actor.IsZero() {
		return domain.NewValidationError(req.Activity, "actor id is required")
	}
	if req.Activity == domain.ActivityCreate {
		if req.CustomerID == "" {
			return domain.NewValidationError(req.Activity, "customer id is required")
		}
	} else if req.BountyID == "" {
		return domain.NewValidationError(req.Activity, "bounty id is required")
	}

	if err := v.validatePayload(req.Activity, req.Payload); err != nil {
		return err
	}
	return validateCrossField(req)
}

// validatePayload unifies the JSON-encoded payload with the activity's
// schema definition.
func (v *Validator) validatePayload(activity domain.Activity, p domain.Payload) error {
	data, err := json.Marshal(p)
	if err != nil {
		return domain.NewValidationError(activity, "encode payload: %v", err)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	def := v.schema.LookupPath(cue.ParsePath("#" + string(activity)))
	if !def.Exists() {
		return domain.NewUnrecognizedActivity(string(activity))
	}
	val := v.ctx.CompileBytes(data)
	if err := val.Err(); err != nil {
		return domain.NewValidationError(activity, "decode payload: %v", err)
	}
	if err := def.Unify(val).Validate(cue.Concrete(true)); err != nil {
		return domain.NewValidationError(activity, "%s", firstCUEError(err))
	}
	return nil
}

// firstCUEError reduces a CUE error list to its first message.
func firstCUEError(err error) string {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return err.Error()
	}
	return errs[0].Error()
}

// validateCrossField checks constraints that span several payload fields.
func validateCrossField(req domain.Request) error {
	p := req.Payload
	if req.Activity != domain.ActivityCreate {
		return nil
	}
	if p.ClaimLimit != nil && !p.Evergreen {
		return domain.NewValidationError(req.Activity, "claimLimit requires evergreen")
	}
	if p.Evergreen && p.RequireApplication {
		return domain.NewValidationError(req.Activity, "evergreen bounties cannot require application")
	}
	if p.Informal && (p.Evergreen || p.RequireApplication) {
		return domain.NewValidationError(req.Activity, "informal bounties cannot be evergreen or require application")
	}
	return nil
}
