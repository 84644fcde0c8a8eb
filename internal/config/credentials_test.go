package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/mrnag/internal/domain"
)

func envMap(m map[string]string) LookupEnvFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

func TestTokenEnvName(t *testing.T) {
	assert.Equal(t, "CORP_GITLAB_TOKEN", TokenEnvName(domain.Forge{ID: "corp", Type: "gitlab"}))
	assert.Equal(t, "ABC_GITHUB_TOKEN", TokenEnvName(domain.Forge{ID: "Abc", Type: "GitHub"}))
}

func TestResolveToken(t *testing.T) {
	forge := domain.Forge{ID: "corp", Type: "gitlab"}

	testCases := []struct {
		name      string
		explicit  domain.Secret
		env       map[string]string
		expected  string
		expectErr bool
	}{
		{
			name:     "explicit token wins over environment",
			explicit: "from-config",
			env:      map[string]string{"CORP_GITLAB_TOKEN": "from-env"},
			expected: "from-config",
		},
		{
			name:     "falls back to environment",
			env:      map[string]string{"CORP_GITLAB_TOKEN": "from-env"},
			expected: "from-env",
		},
		{
			name:      "empty environment value counts as absent",
			env:       map[string]string{"CORP_GITLAB_TOKEN": "  "},
			expectErr: true,
		},
		{
			name:      "nothing configured",
			env:       map[string]string{"OTHER_GITLAB_TOKEN": "x"},
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := forge
			f.Token = tc.explicit

			token, err := ResolveToken(f, envMap(tc.env))

			if tc.expectErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, domain.ErrAuthConfiguration)
				assert.Contains(t, err.Error(), "CORP_GITLAB_TOKEN")
				assert.Empty(t, token)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.expected, token.Reveal())
		})
	}
}

func TestResolveToken_NilLookup(t *testing.T) {
	_, err := ResolveToken(domain.Forge{ID: "a", Type: "gitlab"}, nil)
	assert.ErrorIs(t, err, domain.ErrAuthConfiguration)
}
