// SPDX-License-Identifier: MIT
//
// Package build carries version metadata injected at link time:
//
//	go build -ldflags "-X spectrum/pkg/build.buildName=spectrum \
//		-X spectrum/pkg/build.buildVersion=0.3.0 ..."
//
// Development builds keep the defaults, so Initialize failing is not fatal.
package build

import "fmt"

const description = "Live audio spectrum capture"

type ldFlags struct {
	Name        string
	Description string
	Time        string
	Commit      string
	Version     string
}

// Populated by -ldflags during compilation.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = defaultFlags()
)

func defaultFlags() *ldFlags {
	return &ldFlags{
		Name:        "spectrum",
		Description: description,
		Time:        "unknown",
		Commit:      "unknown",
		Version:     "dev",
	}
}

// Initialize copies the ldflags values into the build information. It
// returns an error naming the first missing value and leaves the defaults
// untouched in that case.
func Initialize() error {
	if buildName == "" {
		return fmt.Errorf("BuildName is required")
	}
	if buildTime == "" {
		return fmt.Errorf("BuildTime is required")
	}
	if buildCommit == "" {
		return fmt.Errorf("BuildCommit is required")
	}
	if buildVersion == "" {
		return fmt.Errorf("BuildVersion is required")
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion

	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}

// String is the one-line version banner.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}
