// Package buildinfo holds build-time metadata injected via -ldflags.
package buildinfo

// Version is the semantic version or tag for this build.
// Inject via: -X github.com/garyellow/itmo-advisor-go/internal/buildinfo.Version=...
var Version = ""

// Commit is the git commit SHA for this build.
// Inject via: -X github.com/garyellow/itmo-advisor-go/internal/buildinfo.Commit=...
var Commit = ""

// BuildDate is the RFC3339 build timestamp.
// Inject via: -X github.com/garyellow/itmo-advisor-go/internal/buildinfo.BuildDate=...
var BuildDate = ""

// String renders the build metadata for version output, substituting
// placeholders for values that were not injected.
func String() string {
	return orDefault(Version, "dev") + " (commit " + orDefault(Commit, "none") + ", built " + orDefault(BuildDate, "unknown") + ")"
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
