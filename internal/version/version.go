// Package version holds build metadata stamped in via -ldflags.
package version

import (
	"fmt"
	"runtime"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// Info is a snapshot of the build metadata for one binary.
type Info struct {
	Service   string
	Version   string
	GitCommit string
	BuildTime string
	GoVersion string
}

// Get returns the build metadata for the named service binary.
func Get(service string) Info {
	return Info{
		Service:   service,
		Version:   Version,
		GitCommit: GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

func (i Info) String() string {
	return fmt.Sprintf("%s %s\n  commit:     %s\n  built:      %s\n  go version: %s",
		i.Service, i.Version, i.GitCommit, i.BuildTime, i.GoVersion)
}
