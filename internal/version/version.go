// Package version holds the version stamped into recall binaries.
package version

// Version is overridden at release time with
// -ldflags "-X github.com/recallhq/recall/internal/version.Version=...".
var Version = "0.1.0-dev"
