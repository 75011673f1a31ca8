// Package version carries build metadata injected with -ldflags.
package version

var (
	// Version is the current agent version
	Version = "dev"
	// GitSHA is the git commit SHA
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// IsDev reports whether the binary was built without a release version.
func IsDev() bool {
	return Version == "dev"
}
