// Package version reports what build of berth is running.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Set at build time via -ldflags. When a value is left empty the binary
// falls back to whatever the embedded module build info carries.
var (
	Version   = "dev"
	Commit    = ""
	BuildTime = ""
)

// Build describes a single berth binary.
type Build struct {
	Version   string
	Commit    string
	BuildTime string
	GoVersion string
	Platform  string
}

// Current resolves the build description, filling gaps from the embedded
// module build info when ldflags were not provided.
func Current() Build {
	b := Build{
		Version:   Version,
		Commit:    Commit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				if b.Commit == "" {
					b.Commit = s.Value
				}
			case "vcs.time":
				if b.BuildTime == "" {
					b.BuildTime = s.Value
				}
			}
		}
	}
	return b
}

// String renders the build as a multi-line report for the version command.
func (b Build) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "berth %s\n", b.Version)
	if b.Commit != "" {
		fmt.Fprintf(&sb, "  commit:     %s\n", shortCommit(b.Commit))
	}
	if b.BuildTime != "" {
		fmt.Fprintf(&sb, "  built:      %s\n", b.BuildTime)
	}
	fmt.Fprintf(&sb, "  go version: %s\n", b.GoVersion)
	fmt.Fprintf(&sb, "  platform:   %s", b.Platform)
	return sb.String()
}

func shortCommit(c string) string {
	if len(c) > 12 {
		return c[:12]
	}
	return c
}
