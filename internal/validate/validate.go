package validate

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/PuerkitoBio/purell"

	"github.com/davidesantangelo/yll/internal/probe"
)

const (
	// Flag set is fixed so normalization stays idempotent
	normalizationFlags = purell.FlagsSafe | purell.FlagRemoveDotSegments
)

// fieldOrder keeps error rendering deterministic
var fieldOrder = []string{"url", "expires_at"}

// FieldErrors accumulates ordered validation messages per field
type FieldErrors map[string][]string

func (fe FieldErrors) Add(field, message string) {
	fe[field] = append(fe[field], message)
}

// Has reports whether the field already collected at least one error
func (fe FieldErrors) Has(field string) bool {
	return len(fe[field]) > 0
}

func (fe FieldErrors) Any() bool {
	return len(fe) > 0
}

// Messages flattens the accumulated errors into human-readable strings,
// fields in a fixed order, messages in the order they were added
func (fe FieldErrors) Messages() []string {
	var messages []string
	for _, field := range fieldOrder {
		for _, msg := range fe[field] {
			messages = append(messages, field+" "+msg)
		}
	}
	return messages
}

// Input carries the raw submitted fields
type Input struct {
	URL       string
	ExpiresAt *time.Time
}

// Result is a normalized link ready for storage
type Result struct {
	URL       string
	ExpiresAt *time.Time
}

// Validator runs the ordered validation pipeline over submitted link
// fields. The reachability probe is the only side-effecting step and is
// injected so tests can fake it.
type Validator struct {
	prober probe.Prober
	now    func() time.Time
}

func NewValidator(prober probe.Prober) *Validator {
	return &Validator{
		prober: prober,
		now:    time.Now,
	}
}

// Validate normalizes the submitted fields or reports field-level errors.
// URL sub-checks run in order and skip once the field has an error;
// the expiry check is independent and always runs.
func (v *Validator) Validate(ctx context.Context, in Input) (*Result, FieldErrors) {
	fieldErrs := FieldErrors{}

	normalized := v.validateURL(ctx, in.URL, fieldErrs)

	if in.ExpiresAt != nil && !in.ExpiresAt.After(v.now()) {
		fieldErrs.Add("expires_at", "must be in the future")
	}

	if fieldErrs.Any() {
		return nil, fieldErrs
	}

	return &Result{URL: normalized, ExpiresAt: in.ExpiresAt}, nil
}

func (v *Validator) validateURL(ctx context.Context, rawURL string, fieldErrs FieldErrors) string {
	if rawURL == "" {
		fieldErrs.Add("url", "is required")
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" ||
		(parsed.Scheme != "http" && parsed.Scheme != "https") {
		fieldErrs.Add("url", "must be a valid HTTP/HTTPS URL")
		return ""
	}

	normalized, err := purell.NormalizeURLString(rawURL, normalizationFlags)
	if err != nil {
		fieldErrs.Add("url", "contains invalid characters or format")
		return ""
	}

	if scheme(normalized) != "https" {
		fieldErrs.Add("url", "must use HTTPS protocol")
		return normalized
	}

	if err := v.prober.Check(ctx, normalized); err != nil {
		var statusErr *probe.StatusError
		if errors.As(err, &statusErr) {
			fieldErrs.Add("url", fmt.Sprintf("could not be verified (HTTP %d)", statusErr.Status))
		} else {
			fieldErrs.Add("url", fmt.Sprintf("could not be reached: %v", err))
		}
	}

	return normalized
}

func scheme(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return parsed.Scheme
}
