// Package domain contains the core data structures and domain logic for the application.
package domain

import "encoding/json"

// Forge types with a built-in client.
const (
	ForgeGitLab = "gitlab"
	ForgeGitHub = "github"
)

// Secret holds an access token. It never prints or serializes its value.
type Secret string

const redacted = "[redacted]"

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

// GoString keeps %#v from leaking the token.
func (s Secret) GoString() string { return s.String() }

// MarshalJSON always emits the redacted marker.
func (s Secret) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Reveal returns the raw token. Only transports should call it.
func (s Secret) Reveal() string { return string(s) }

// Forge is a source-hosting service exposing a merge/pull request API.
type Forge struct {
	ID       string    `json:"id"`
	Type     string    `json:"type"`
	APIURL   string    `json:"api_url"`
	Token    Secret    `json:"-"`
	Projects []Project `json:"projects,omitempty"`
}

// Project is a repository hosted on a forge. ForgeID is a lookup reference
// resolved against the configuration, not ownership.
type Project struct {
	Name    string `json:"name"`
	ID      string `json:"id"`
	ForgeID string `json:"forge"`
	WebURL  string `json:"web_url,omitempty"`
}

// Key identifies a project across forges.
func (p Project) Key() string {
	return p.ForgeID + "/" + p.ID
}

// DisplayName falls back to the forge-native identifier when no name is known.
func (p Project) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.ID
}
