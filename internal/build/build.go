// Package build holds build-time metadata stamped in via -ldflags.
package build

var (
	// ProjectName is used to prefix metric and log namespaces.
	ProjectName = "meridian"

	// Version is the release version, overridden at build time.
	Version = "dev"

	// Commit is the git commit the binary was built from.
	Commit = ""
)
