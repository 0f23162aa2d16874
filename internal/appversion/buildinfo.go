// Package appversion reports the version stamped into vigil binaries.
package appversion

// version is overridden by release builds through -ldflags.
var version = "dev" //nolint:gochecknoglobals // ldflags requires package-level var

// String returns the version of the running binary, "dev" for local builds.
func String() string {
	return version
}
