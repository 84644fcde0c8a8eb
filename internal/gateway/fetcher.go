// Package gateway provides the forge clients that fetch merge requests,
// one implementation per forge type behind a common Fetcher interface.
package gateway

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/naka-gawa/mrnag/internal/domain"
)

const (
	DefaultRequestTimeout = 30 * time.Second
	DefaultMaxPages       = 50
	DefaultPerPage        = 100
)

// Fetcher fetches the merge requests of one project from one forge.
// Errors are *domain.FetchError values carrying project and forge context.
type Fetcher interface {
	FetchMergeRequests(ctx context.Context, project domain.Project) ([]domain.MergeRequest, error)
}

// Hydrator is implemented by fetchers that can fill in project metadata
// (display name, web URL) from the forge.
type Hydrator interface {
	HydrateProject(ctx context.Context, project domain.Project) (domain.Project, error)
}

// Options tunes every client built by a Registry.
type Options struct {
	// RequestTimeout bounds each outbound HTTP request.
	RequestTimeout time.Duration
	// MaxPages bounds pagination against a misbehaving endpoint.
	MaxPages int
	PerPage  int
	Logger   logrus.FieldLogger
}

func (o Options) withDefaults() Options {
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.MaxPages <= 0 {
		o.MaxPages = DefaultMaxPages
	}
	if o.PerPage <= 0 {
		o.PerPage = DefaultPerPage
	}
	if o.Logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		o.Logger = l
	}
	return o
}

// Factory builds a Fetcher for a forge with an already resolved token.
type Factory func(forge domain.Forge, token domain.Secret, opts Options) (Fetcher, error)

// Registry maps forge type keys to client factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	opts      Options
}

// NewRegistry creates an empty registry whose clients share opts.
func NewRegistry(opts Options) *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		opts:      opts.withDefaults(),
	}
}

// DefaultRegistry registers the built-in GitLab and GitHub clients.
func DefaultRegistry(opts Options) *Registry {
	r := NewRegistry(opts)
	r.Register(domain.ForgeGitLab, func(f domain.Forge, t domain.Secret, o Options) (Fetcher, error) {
		return NewGitLabClient(f, t, o)
	})
	r.Register(domain.ForgeGitHub, func(f domain.Forge, t domain.Secret, o Options) (Fetcher, error) {
		return NewGitHubClient(f, t, o)
	})
	return r
}

// Register adds or replaces the factory for a forge type.
func (r *Registry) Register(forgeType string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[strings.ToLower(forgeType)] = factory
}

// Types lists the registered forge types.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// New builds the client for a forge. Unknown types fail with
// domain.ErrUnsupportedForgeType.
func (r *Registry) New(forge domain.Forge, token domain.Secret) (Fetcher, error) {
	r.mu.RLock()
	factory, ok := r.factories[strings.ToLower(forge.Type)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", domain.ErrUnsupportedForgeType, forge.Type, strings.Join(r.Types(), ", "))
	}
	fetcher, err := factory(forge, token, r.opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client for forge %q: %w", forge.Type, forge.ID, err)
	}
	return fetcher, nil
}
