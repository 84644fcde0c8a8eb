// Package formatter renders an aggregation result into an output payload.
// Every formatter surfaces failed projects; none of them drops a failure silently.
package formatter

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// Options carries render-time context.
type Options struct {
	// Now anchors relative ages; zero means time.Now().
	Now time.Time
	// Requestor is the user named in chat summaries.
	Requestor string
	// ResponseType is the Slack response type ("ephemeral" or "in_channel").
	ResponseType string
}

func (o Options) now() time.Time {
	if o.Now.IsZero() {
		return time.Now()
	}
	return o.Now
}

// Formatter renders a result snapshot. Render must not mutate the result.
type Formatter interface {
	Render(result domain.AggregationResult, opts Options) ([]byte, error)
	ContentType() string
}

// Registry maps format names to formatters.
type Registry struct {
	mu         sync.RWMutex
	formatters map[string]Formatter
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{formatters: make(map[string]Formatter)}
}

// DefaultRegistry registers every built-in formatter.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register("text", Text{})
	r.Register("markdown", Markdown{})
	r.Register("md", Markdown{})
	r.Register("json", JSON{})
	r.Register("csv", CSV{})
	r.Register("slack", Slack{})
	r.Register("xlsx", XLSX{})
	return r
}

// Register adds or replaces a formatter.
func (r *Registry) Register(name string, f Formatter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.formatters[strings.ToLower(name)] = f
}

// Names lists the registered format names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.formatters))
	for n := range r.formatters {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Get returns the formatter for name or domain.ErrUnsupportedFormat.
func (r *Registry) Get(name string) (Formatter, error) {
	r.mu.RLock()
	f, ok := r.formatters[strings.ToLower(name)]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w %q (known: %s)", domain.ErrUnsupportedFormat, name, strings.Join(r.Names(), ", "))
	}
	return f, nil
}

func plural(n int, singular, pluralForm string) string {
	if n == 1 {
		return singular
	}
	return pluralForm
}

func errorMessage(err error) string {
	return strings.TrimSpace(err.Error())
}
