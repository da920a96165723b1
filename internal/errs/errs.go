// Package errs defines the typed failure kinds used across the pipeline.
package errs

import "errors"

// Kind classifies a failure so callers can decide whether to retry, skip,
// or treat it as fatal.
type Kind string

const (
	KindConfigInvalid     Kind = "config_invalid"
	KindTemplateInvalid   Kind = "template_invalid"
	KindOutDirUnwritable  Kind = "out_dir_unwritable"
	KindCredentialMissing Kind = "credential_missing"
	KindProviderTransient Kind = "provider_transient"
	KindProviderPermanent Kind = "provider_permanent"
	KindRewriterFailed    Kind = "rewriter_failed"
	KindDedupeDuplicate   Kind = "dedupe_duplicate"
	KindPersistenceFailed Kind = "persistence_failed"
	KindCancelled         Kind = "cancelled"
	KindRunAlreadyActive  Kind = "run_in_progress"
	KindPathUnsafe        Kind = "path_unsafe"
	KindStalled           Kind = "stalled"
)

// Error wraps an underlying error with a Kind so the caller can classify
// it without string matching.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return string(e.Kind) + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

// New wraps err with the given kind. If err is nil the kind alone becomes
// the error message.
func New(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Is reports whether err carries the given Kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind from err, if any.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
