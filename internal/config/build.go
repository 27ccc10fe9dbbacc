package config

// Build metadata injected by the linker:
//
//	go build -ldflags "-X subledger/internal/config.version=1.2.3 \
//	    -X subledger/internal/config.commit=$(git rev-parse --short HEAD) \
//	    -X subledger/internal/config.buildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
//
// The fallbacks cover local builds that skip the flags.
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

// NewBuildInfo exposes the injected values as a BuildInfo.
func NewBuildInfo() BuildInfo {
	return BuildInfo{Version: version, Commit: commit, BuildTime: buildTime}
}
