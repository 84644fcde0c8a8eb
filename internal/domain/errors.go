package domain

import (
	"errors"
	"fmt"
)

// Error kinds. Per-project failures wrap one of these in a *FetchError.
var (
	ErrConfigValidation     = errors.New("invalid configuration")
	ErrAuthConfiguration    = errors.New("no access token configured")
	ErrAuth                 = errors.New("forge rejected credentials")
	ErrRemote               = errors.New("forge request failed")
	ErrNotFound             = errors.New("project not found")
	ErrNormalization        = errors.New("unexpected forge response")
	ErrUnsupportedForgeType = errors.New("unsupported forge type")
	ErrUnsupportedFormat    = errors.New("unsupported output format")
)

var kindNames = []struct {
	kind error
	name string
}{
	{ErrAuthConfiguration, "auth_configuration"},
	{ErrAuth, "auth"},
	{ErrNotFound, "not_found"},
	{ErrNormalization, "normalization"},
	{ErrUnsupportedForgeType, "unsupported_forge_type"},
	{ErrRemote, "remote"},
	{ErrConfigValidation, "config_validation"},
	{ErrUnsupportedFormat, "unsupported_format"},
}

// FetchError attributes a failure to a project and its forge.
type FetchError struct {
	Kind    error
	Forge   string
	Project string
	Err     error
}

// NewFetchError builds a FetchError. kind must be one of the Err* sentinels.
func NewFetchError(kind error, forge, project string, err error) *FetchError {
	return &FetchError{Kind: kind, Forge: forge, Project: project, Err: err}
}

func (e *FetchError) Error() string {
	prefix := fmt.Sprintf("project %q on forge %q: ", e.Project, e.Forge)
	switch {
	case e.Err == nil:
		return prefix + e.Kind.Error()
	case errors.Is(e.Err, e.Kind):
		return prefix + e.Err.Error()
	default:
		return prefix + e.Kind.Error() + ": " + e.Err.Error()
	}
}

// Is matches the error kind.
func (e *FetchError) Is(target error) bool {
	return target == e.Kind
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// KindOf returns a stable short name for the kind of err, or "unknown".
func KindOf(err error) string {
	if err == nil {
		return ""
	}
	var fe *FetchError
	if errors.As(err, &fe) && fe.Kind != nil {
		err = fe.Kind
	}
	for _, k := range kindNames {
		if errors.Is(err, k.kind) {
			return k.name
		}
	}
	return "unknown"
}
