package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/naka-gawa/mrnag/internal/domain"
)

// LookupEnvFunc reads an environment variable, reporting whether it was set.
type LookupEnvFunc func(key string) (string, bool)

// OSLookupEnv reads the process environment.
var OSLookupEnv LookupEnvFunc = os.LookupEnv

// TokenEnvName is the environment variable consulted when a forge has no
// explicit token, e.g. forge "corp" of type "gitlab" reads CORP_GITLAB_TOKEN.
func TokenEnvName(f domain.Forge) string {
	return strings.ToUpper(fmt.Sprintf("%s_%s_TOKEN", f.ID, f.Type))
}

// ResolveToken returns the access token for a forge. An explicit token in the
// configuration wins; otherwise the environment variable named by TokenEnvName
// must be set and non-empty.
func ResolveToken(f domain.Forge, lookup LookupEnvFunc) (domain.Secret, error) {
	if f.Token != "" {
		return f.Token, nil
	}
	name := TokenEnvName(f)
	if lookup != nil {
		if v, ok := lookup(name); ok && strings.TrimSpace(v) != "" {
			return domain.Secret(strings.TrimSpace(v)), nil
		}
	}
	return "", fmt.Errorf("%w: forge %q has no token and %s is not set", domain.ErrAuthConfiguration, f.ID, name)
}
