package modelcatalog

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Candidate is one provider/model pair a fallback run may try.
type Candidate struct {
	Provider string
	Model    string
}

func (c Candidate) String() string {
	return strings.ToLower(c.Provider) + "/" + strings.ToLower(c.Model)
}

// Attempt records one failed candidate during a fallback run.
type Attempt struct {
	Provider string
	Model    string
	Reason   string
	Error    string
}

// FallbackResult carries the winning candidate's result plus the
// attempts that failed before it.
type FallbackResult[T any] struct {
	Result   T
	Provider string
	Model    string
	Attempts []Attempt
}

// FallbackConfig lists the candidates for a fallback run. Fallbacks are
// "provider/model" strings (a bare model inherits PrimaryProvider); the
// primary pair is always tried first.
type FallbackConfig struct {
	PrimaryProvider string
	PrimaryModel    string
	Fallbacks       []string
}

// RunFunc performs the operation for one candidate.
type RunFunc[T any] func(ctx context.Context, provider, model string) (T, error)

// OnErrorFunc observes a failed attempt (1-based index, total count).
type OnErrorFunc func(provider, model string, err error, attempt, total int)

// Failure reasons assigned by ClassifyError.
const (
	ReasonRateLimit    = "rate_limit"
	ReasonAuthError    = "auth_error"
	ReasonTimeout      = "timeout"
	ReasonServerError  = "server_error"
	ReasonBilling      = "billing"
	ReasonUnavailable  = "model_unavailable"
	ReasonAbort        = "abort"
	ReasonInvalid      = "invalid_request"
	ReasonContentBlock = "content_blocked"
	ReasonUnknown      = "unknown"
)

var (
	// ErrAborted marks a caller-initiated abort; never failed over.
	ErrAborted = errors.New("operation aborted")

	// ErrAllCandidatesFailed wraps the aggregated per-candidate errors
	// when every configured pair has been tried.
	ErrAllCandidatesFailed = errors.New("all model candidates failed")
)

// FailoverError is a provider error annotated with the candidate it
// came from and a classified reason.
type FailoverError struct {
	Err      error
	Provider string
	Model    string
	Reason   string
}

func (e *FailoverError) Error() string {
	msg := fmt.Sprintf("[%s] %s/%s", e.Reason, e.Provider, e.Model)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FailoverError) Unwrap() error { return e.Err }

// NewFailoverError annotates err with a candidate and an explicit reason.
func NewFailoverError(err error, provider, model, reason string) *FailoverError {
	return &FailoverError{Err: err, Provider: provider, Model: model, Reason: reason}
}

// CoerceToFailoverError ensures err is a FailoverError, classifying the
// reason from its content when it is not one already.
func CoerceToFailoverError(err error, provider, model string) *FailoverError {
	if err == nil {
		return nil
	}
	var existing *FailoverError
	if errors.As(err, &existing) {
		if existing.Provider == "" {
			existing.Provider = provider
		}
		if existing.Model == "" {
			existing.Model = model
		}
		return existing
	}
	return &FailoverError{Err: err, Provider: provider, Model: model, Reason: ClassifyError(err)}
}

// reasonPatterns maps substrings of provider error text to a reason,
// checked in order. Abort and timeout are handled via errors.Is first.
var reasonPatterns = []struct {
	reason  string
	needles []string
}{
	{ReasonAbort, []string{"aborted", "cancelled", "canceled"}},
	{ReasonTimeout, []string{"timeout", "deadline exceeded", "etimedout"}},
	{ReasonRateLimit, []string{"rate limit", "rate_limit", "too many requests", "429"}},
	{ReasonAuthError, []string{"unauthorized", "invalid api key", "invalid_api_key", "authentication", "401", "403"}},
	{ReasonBilling, []string{"billing", "payment", "quota", "insufficient", "402"}},
	{ReasonUnavailable, []string{"model not found", "model_not_found", "does not exist", "unavailable"}},
	{ReasonContentBlock, []string{"content_filter", "content policy", "safety", "blocked"}},
	{ReasonServerError, []string{"internal server", "server error", "overloaded", "500", "502", "503", "529"}},
	{ReasonInvalid, []string{"invalid", "bad request", "400"}},
}

// ClassifyError assigns a reason to a raw provider error.
func ClassifyError(err error) string {
	switch {
	case err == nil:
		return ReasonUnknown
	case errors.Is(err, context.Canceled), errors.Is(err, ErrAborted):
		return ReasonAbort
	case errors.Is(err, context.DeadlineExceeded):
		return ReasonTimeout
	}
	text := strings.ToLower(err.Error())
	for _, p := range reasonPatterns {
		for _, needle := range p.needles {
			if strings.Contains(text, needle) {
				return p.reason
			}
		}
	}
	return ReasonUnknown
}

// failoverReasons are the classifications worth trying another
// candidate for. Invalid requests and content blocks would fail the
// same way anywhere, and aborts must stop the run.
var failoverReasons = map[string]bool{
	ReasonRateLimit:   true,
	ReasonServerError: true,
	ReasonTimeout:     true,
	ReasonBilling:     true,
	ReasonAuthError:   true,
	ReasonUnavailable: true,
}

// IsFailoverError reports whether err should trigger the next candidate.
func IsFailoverError(err error) bool {
	if err == nil {
		return false
	}
	var fe *FailoverError
	if errors.As(err, &fe) {
		return failoverReasons[fe.Reason]
	}
	return failoverReasons[ClassifyError(err)]
}

// IsAbortError reports whether err is a caller abort, which stops the
// run without trying further candidates.
func IsAbortError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrAborted) {
		return true
	}
	var fe *FailoverError
	if errors.As(err, &fe) {
		return fe.Reason == ReasonAbort
	}
	return ClassifyError(err) == ReasonAbort
}

// ParseModelRef parses a "provider/model" string; a bare model name
// inherits defaultProvider. Returns nil for a blank ref.
func ParseModelRef(ref, defaultProvider string) *Candidate {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	if provider, model, ok := strings.Cut(ref, "/"); ok {
		return &Candidate{Provider: provider, Model: model}
	}
	return &Candidate{Provider: defaultProvider, Model: ref}
}

// BuildCandidates expands cfg into the ordered candidate list: the
// primary pair first, then each fallback ref that is not a duplicate of
// the primary.
func BuildCandidates(cfg *FallbackConfig) []Candidate {
	if cfg == nil {
		return nil
	}
	out := make([]Candidate, 0, 1+len(cfg.Fallbacks))
	if cfg.PrimaryProvider != "" && cfg.PrimaryModel != "" {
		out = append(out, Candidate{Provider: cfg.PrimaryProvider, Model: cfg.PrimaryModel})
	}
	for _, ref := range cfg.Fallbacks {
		c := ParseModelRef(ref, cfg.PrimaryProvider)
		if c == nil || (c.Provider == cfg.PrimaryProvider && c.Model == cfg.PrimaryModel) {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// RunWithModelFallback tries each candidate in order until run
// succeeds, a non-failover error occurs, or the list is exhausted.
func RunWithModelFallback[T any](ctx context.Context, cfg *FallbackConfig, run RunFunc[T], onError OnErrorFunc) (*FallbackResult[T], error) {
	candidates := BuildCandidates(cfg)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("no model candidates configured")
	}

	attempts := make([]Attempt, 0, len(candidates))
	for i, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, ErrAborted
			}
			return nil, err
		}

		result, err := run(ctx, candidate.Provider, candidate.Model)
		if err == nil {
			return &FallbackResult[T]{
				Result:   result,
				Provider: candidate.Provider,
				Model:    candidate.Model,
				Attempts: attempts,
			}, nil
		}

		fe := CoerceToFailoverError(err, candidate.Provider, candidate.Model)
		attempts = append(attempts, Attempt{
			Provider: candidate.Provider,
			Model:    candidate.Model,
			Reason:   fe.Reason,
			Error:    err.Error(),
		})
		if onError != nil {
			onError(candidate.Provider, candidate.Model, err, i+1, len(candidates))
		}

		if IsAbortError(err) {
			return nil, err
		}
		if i < len(candidates)-1 && !IsFailoverError(err) {
			return nil, err
		}
	}

	return nil, aggregateAttempts(attempts)
}

func aggregateAttempts(attempts []Attempt) error {
	if len(attempts) == 0 {
		return ErrAllCandidatesFailed
	}
	var sb strings.Builder
	for i, a := range attempts {
		if i > 0 {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "%s/%s [%s] %s", a.Provider, a.Model, a.Reason, a.Error)
	}
	return fmt.Errorf("%w: %s", ErrAllCandidatesFailed, sb.String())
}
