package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/mrnag/internal/domain"
)

const mixedConfig = `
forges:
  - id: corp
    type: GitLab
    api_url: https://gitlab.example.com/api/v4/
    token: glpat-secret
    projects:
      - name: Foo Service
        project_id: 101
      - name: Docs
        project_id: group/docs
  - id: gh
    type: github
    api_url: https://api.github.com
projects:
  - name: Bar App
    project_id: acme/bar-app
    forge: gh
  - name: Baz
    project_id: 7
    forge: corp
`

func TestParse_BothDeclarationStyles(t *testing.T) {
	cfg, err := Parse([]byte(mixedConfig))
	require.NoError(t, err)

	projects := cfg.Projects()
	require.Len(t, projects, 4)
	assert.Equal(t, []domain.Project{
		{Name: "Foo Service", ID: "101", ForgeID: "corp"},
		{Name: "Docs", ID: "group/docs", ForgeID: "corp"},
		{Name: "Bar App", ID: "acme/bar-app", ForgeID: "gh"},
		{Name: "Baz", ID: "7", ForgeID: "corp"},
	}, projects)

	corp, ok := cfg.Forge("corp")
	require.True(t, ok)
	assert.Equal(t, "gitlab", corp.Type)
	assert.Equal(t, "https://gitlab.example.com/api/v4", corp.APIURL)
	assert.Equal(t, "glpat-secret", corp.Token.Reveal())
	assert.Len(t, corp.Projects, 3)

	gh, ok := cfg.Forge("gh")
	require.True(t, ok)
	assert.Empty(t, gh.Token)
	assert.Len(t, gh.Projects, 1)
}

func TestParse_ValidationFailures(t *testing.T) {
	testCases := []struct {
		name    string
		doc     string
		problem string
	}{
		{
			name:    "no forges",
			doc:     "projects: []",
			problem: "no forges configured",
		},
		{
			name:    "empty document",
			doc:     "",
			problem: "no forges configured",
		},
		{
			name: "missing id",
			doc: `
forges:
  - type: gitlab
    api_url: https://gitlab.com/api/v4`,
			problem: "forges[0]: id is required",
		},
		{
			name: "missing type and api_url",
			doc: `
forges:
  - id: a`,
			problem: "forges[0]: type is required",
		},
		{
			name: "relative api_url",
			doc: `
forges:
  - id: a
    type: gitlab
    api_url: gitlab.com/api/v4`,
			problem: "is not an absolute http(s) URL",
		},
		{
			name: "duplicate forge id",
			doc: `
forges:
  - id: a
    type: gitlab
    api_url: https://gitlab.com/api/v4
  - id: a
    type: github
    api_url: https://api.github.com`,
			problem: `duplicate forge id "a"`,
		},
		{
			name: "unknown forge reference",
			doc: `
forges:
  - id: a
    type: gitlab
    api_url: https://gitlab.com/api/v4
projects:
  - name: Lost
    project_id: 1
    forge: nope`,
			problem: `unknown forge "nope"`,
		},
		{
			name: "embedded project references other forge",
			doc: `
forges:
  - id: a
    type: gitlab
    api_url: https://gitlab.com/api/v4
    projects:
      - project_id: 1
        forge: b`,
			problem: `declared under forge "a" but references forge "b"`,
		},
		{
			name: "missing project_id",
			doc: `
forges:
  - id: a
    type: gitlab
    api_url: https://gitlab.com/api/v4
    projects:
      - name: Nameless`,
			problem: "project_id is required",
		},
		{
			name: "unknown key",
			doc: `
forges:
  - id: a
    type: gitlab
    api_url: https://gitlab.com/api/v4
    tokn: typo`,
			problem: "malformed YAML",
		},
		{
			name: "non-scalar project id",
			doc: `
forges:
  - id: a
    type: gitlab
    api_url: https://gitlab.com/api/v4
    projects:
      - project_id: [1, 2]`,
			problem: "project_id must be a number or a string",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tc.doc))
			require.Error(t, err)
			assert.Nil(t, cfg)
			assert.ErrorIs(t, err, domain.ErrConfigValidation)
			assert.Contains(t, err.Error(), tc.problem)
		})
	}
}

func TestParse_ReportsAllProblems(t *testing.T) {
	_, err := Parse([]byte(`
forges:
  - id: a
    type: gitlab
    api_url: https://gitlab.com/api/v4
  - id: a
    type: gitlab
    api_url: https://gitlab.com/api/v4
projects:
  - project_id: 1
    forge: missing
`))
	var ve *ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Len(t, ve.Problems, 2)
}

func TestParse_NoProjectsIsValid(t *testing.T) {
	cfg, err := Parse([]byte(`
forges:
  - id: a
    type: gitlab
    api_url: https://gitlab.com/api/v4
`))
	require.NoError(t, err)
	assert.Empty(t, cfg.Projects())
}

func TestConfig_AccessorsReturnCopies(t *testing.T) {
	cfg, err := Parse([]byte(mixedConfig))
	require.NoError(t, err)

	projects := cfg.Projects()
	projects[0].Name = "mutated"
	forges := cfg.Forges()
	forges[0].ID = "mutated"
	forges[0].Projects[0].Name = "mutated"

	assert.Equal(t, "Foo Service", cfg.Projects()[0].Name)
	assert.Equal(t, "corp", cfg.Forges()[0].ID)
	assert.Equal(t, "Foo Service", cfg.Forges()[0].Projects[0].Name)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(mixedConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, cfg.Forges(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}
