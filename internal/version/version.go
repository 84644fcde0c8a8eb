// Package version holds the build version, set with
// -ldflags "-X github.com/naka-gawa/mrnag/internal/version.Version=v1.2.3".
package version

// Version is the released version of mrnag.
var Version = "1.0.0-dev"
