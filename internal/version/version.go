// Package version describes the watts build and the simulation codes it
// drives.
package version

import (
	"fmt"
	"runtime"
	"strings"
)

var (
	// Version is the semantic version (set by ldflags during build)
	Version = "dev"
	// Commit is the git commit hash (set by ldflags during build)
	Commit = "unknown"
	// Date is the build date (set by ldflags during build)
	Date = "unknown"
)

// Info is the build of this binary plus, when resolved, the executables of
// the plugins.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	Date      string `json:"date"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
	Tools     []Tool `json:"tools,omitempty"`
}

// Tool is the executable one plugin runs. Path is empty when it could not
// be resolved on this machine.
type Tool struct {
	Plugin     string `json:"plugin"`
	Executable string `json:"executable"`
	Path       string `json:"path,omitempty"`
}

func GetInfo() Info {
	return Info{
		Version:   Version,
		Commit:    Commit,
		Date:      Date,
		GoVersion: runtime.Version(),
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// WithTools returns a copy of i listing tools.
func (i Info) WithTools(tools ...Tool) Info {
	i.Tools = append([]Tool(nil), tools...)
	return i
}

// String is the one-line build description followed by a line per tool.
func (i Info) String() string {
	commit := i.Commit
	if len(commit) > 8 {
		commit = commit[:8]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "watts %s (%s) built %s with %s for %s", i.Version, commit, i.Date, i.GoVersion, i.Platform)
	for _, t := range i.Tools {
		path := t.Path
		if path == "" {
			path = "not found"
		}
		fmt.Fprintf(&b, "\n  %-7s %-8s %s", t.Plugin, t.Executable, path)
	}
	return b.String()
}

func (i Info) Short() string {
	return i.Version
}
