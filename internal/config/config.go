// Package config loads and validates the forge/project configuration document.
package config

import (
	"bytes"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// Config is the validated, read-only view of the configuration document.
// Accessors return copies so callers cannot mutate it.
type Config struct {
	forges   []domain.Forge
	projects []domain.Project
	index    map[string]int
}

// ValidationError collects every problem found in a configuration document.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%v: %s", domain.ErrConfigValidation, strings.Join(e.Problems, "; "))
}

// Is matches domain.ErrConfigValidation.
func (e *ValidationError) Is(target error) bool {
	return target == domain.ErrConfigValidation
}

type document struct {
	Forges   []forgeEntry   `yaml:"forges"`
	Projects []projectEntry `yaml:"projects"`
}

type forgeEntry struct {
	ID       string         `yaml:"id"`
	Type     string         `yaml:"type"`
	APIURL   string         `yaml:"api_url"`
	Token    string         `yaml:"token"`
	Projects []projectEntry `yaml:"projects"`
}

type projectEntry struct {
	Name      string   `yaml:"name"`
	ProjectID scalarID `yaml:"project_id"`
	Forge     string   `yaml:"forge"`
}

// scalarID accepts both numeric and string project identifiers.
type scalarID string

func (s *scalarID) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: project_id must be a number or a string", node.Line)
	}
	*s = scalarID(strings.TrimSpace(node.Value))
	return nil
}

// Load reads and validates the configuration document at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", path)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %s", path)
	}
	return cfg, nil
}

// Parse decodes and validates a YAML configuration document. Both project
// declaration styles are accepted: embedded under a forge, or in the top-level
// list referencing a forge id. Embedded projects come first, in forge order.
func Parse(data []byte) (*Config, error) {
	var doc document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, &ValidationError{Problems: []string{"malformed YAML: " + err.Error()}}
	}

	var problems []string
	forges := make([]domain.Forge, 0, len(doc.Forges))
	var projects []domain.Project

	for i, fe := range doc.Forges {
		forges = append(forges, domain.Forge{
			ID:     strings.TrimSpace(fe.ID),
			Type:   strings.ToLower(strings.TrimSpace(fe.Type)),
			APIURL: strings.TrimRight(strings.TrimSpace(fe.APIURL), "/"),
			Token:  domain.Secret(strings.TrimSpace(fe.Token)),
		})
		for j, pe := range fe.Projects {
			if pe.Forge != "" && pe.Forge != fe.ID {
				problems = append(problems, fmt.Sprintf("forges[%d].projects[%d]: declared under forge %q but references forge %q", i, j, fe.ID, pe.Forge))
				continue
			}
			projects = append(projects, domain.Project{
				Name:    strings.TrimSpace(pe.Name),
				ID:      string(pe.ProjectID),
				ForgeID: forges[i].ID,
			})
		}
	}
	for _, pe := range doc.Projects {
		projects = append(projects, domain.Project{
			Name:    strings.TrimSpace(pe.Name),
			ID:      string(pe.ProjectID),
			ForgeID: strings.TrimSpace(pe.Forge),
		})
	}

	cfg, err := New(forges, projects)
	if err != nil {
		var ve *ValidationError
		if errors.As(err, &ve) {
			ve.Problems = append(problems, ve.Problems...)
			return nil, ve
		}
		return nil, err
	}
	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return cfg, nil
}

// New validates forges and projects and builds a Config. Every project must
// resolve to exactly one forge.
func New(forges []domain.Forge, projects []domain.Project) (*Config, error) {
	var problems []string
	if len(forges) == 0 {
		problems = append(problems, "no forges configured")
	}

	cfg := &Config{index: make(map[string]int, len(forges))}
	for i, f := range forges {
		where := fmt.Sprintf("forges[%d]", i)
		if f.ID == "" {
			problems = append(problems, where+": id is required")
		}
		if f.Type == "" {
			problems = append(problems, where+": type is required")
		}
		if f.APIURL == "" {
			problems = append(problems, where+": api_url is required")
		} else if u, err := url.Parse(f.APIURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			problems = append(problems, fmt.Sprintf("%s: api_url %q is not an absolute http(s) URL", where, f.APIURL))
		}
		if f.ID == "" {
			continue
		}
		if _, dup := cfg.index[f.ID]; dup {
			problems = append(problems, fmt.Sprintf("%s: duplicate forge id %q", where, f.ID))
			continue
		}
		f.Projects = nil
		cfg.index[f.ID] = len(cfg.forges)
		cfg.forges = append(cfg.forges, f)
	}

	for i, p := range projects {
		where := fmt.Sprintf("projects[%d]", i)
		if p.Name != "" {
			where += fmt.Sprintf(" (%s)", p.Name)
		}
		if p.ID == "" {
			problems = append(problems, where+": project_id is required")
		}
		if p.ForgeID == "" {
			problems = append(problems, where+": forge is required")
			continue
		}
		idx, ok := cfg.index[p.ForgeID]
		if !ok {
			problems = append(problems, fmt.Sprintf("%s: unknown forge %q", where, p.ForgeID))
			continue
		}
		cfg.projects = append(cfg.projects, p)
		cfg.forges[idx].Projects = append(cfg.forges[idx].Projects, p)
	}

	if len(problems) > 0 {
		return nil, &ValidationError{Problems: problems}
	}
	return cfg, nil
}

// Forges returns the configured forges in declaration order.
func (c *Config) Forges() []domain.Forge {
	out := make([]domain.Forge, len(c.forges))
	for i, f := range c.forges {
		out[i] = f
		out[i].Projects = append([]domain.Project(nil), f.Projects...)
	}
	return out
}

// Projects returns every configured project in configuration order.
func (c *Config) Projects() []domain.Project {
	return append([]domain.Project(nil), c.projects...)
}

// Forge looks up a forge by id.
func (c *Config) Forge(id string) (domain.Forge, bool) {
	idx, ok := c.index[id]
	if !ok {
		return domain.Forge{}, false
	}
	f := c.forges[idx]
	f.Projects = append([]domain.Project(nil), f.Projects...)
	return f, true
}
