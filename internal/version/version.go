// Package version holds build information for the chatserver binary.
//
// Set at link time:
//
//	go build -ldflags "-X github.com/rickgao/simplechat/internal/version.Version=0.3.0 \
//	                   -X github.com/rickgao/simplechat/internal/version.Commit=$(git rev-parse --short HEAD)" \
//	         ./cmd/chatserver
package version

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

// Info is the build information as reported on the health endpoint.
type Info struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

// Get returns the current build information.
func Get() Info {
	return Info{Version: Version, Commit: Commit, BuildTime: BuildTime}
}

// String formats the build information for log lines, e.g. "0.3.0 (a1b2c3d)".
func String() string {
	if BuildTime == "unknown" {
		return Version + " (" + Commit + ")"
	}
	return Version + " (" + Commit + ") built " + BuildTime
}
