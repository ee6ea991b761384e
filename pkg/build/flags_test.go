// SPDX-License-Identifier: MIT
package build

import (
	"os"
	"testing"
)

var (
	origName    string
	origTime    string
	origCommit  string
	origVersion string
	origFlags   ldFlags
)

func TestMain(m *testing.M) {
	origName = buildName
	origTime = buildTime
	origCommit = buildCommit
	origVersion = buildVersion
	origFlags = *buildFlags

	exitCode := m.Run()

	buildName = origName
	buildTime = origTime
	buildCommit = origCommit
	buildVersion = origVersion
	*buildFlags = origFlags

	os.Exit(exitCode)
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		name        string
		buildName   string
		buildTime   string
		buildCommit string
		buildVer    string
		wantErrMsg  string
	}{
		{"Missing BuildName", "", "2025-04-13", "abcdef123", "v1.0.0", "BuildName is required"},
		{"Missing BuildTime", "spectrum", "", "abcdef123", "v1.0.0", "BuildTime is required"},
		{"Missing BuildCommit", "spectrum", "2025-04-13", "", "v1.0.0", "BuildCommit is required"},
		{"Missing BuildVersion", "spectrum", "2025-04-13", "abcdef123", "", "BuildVersion is required"},
		{"Success Case", "spectrum", "2025-04-13", "abcdef123", "v1.0.0", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buildFlags = defaultFlags()

			buildName = tt.buildName
			buildTime = tt.buildTime
			buildCommit = tt.buildCommit
			buildVersion = tt.buildVer

			err := Initialize()

			if tt.wantErrMsg != "" {
				if err == nil || err.Error() != tt.wantErrMsg {
					t.Fatalf("Initialize() error = %v, want %v", err, tt.wantErrMsg)
				}
				if buildFlags.Version != "dev" {
					t.Errorf("failed Initialize changed Version to %q", buildFlags.Version)
				}
				return
			}

			if err != nil {
				t.Fatalf("Initialize() unexpected error: %v", err)
			}
			want := ldFlags{
				Name:        tt.buildName,
				Description: description,
				Time:        tt.buildTime,
				Commit:      tt.buildCommit,
				Version:     tt.buildVer,
			}
			if *buildFlags != want {
				t.Errorf("buildFlags = %+v, want %+v", *buildFlags, want)
			}
		})
	}
}

func TestGetBuildFlags(t *testing.T) {
	buildFlags = defaultFlags()

	flags := GetBuildFlags()
	if flags.Name != "spectrum" || flags.Version != "dev" {
		t.Errorf("GetBuildFlags() = %+v, want development defaults", flags)
	}
	if got, want := flags.String(), "spectrum dev (commit unknown, built unknown)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}
