// Package version exposes the application version derived from build
// metadata. Go embeds VCS info into the binary via runtime/debug, so no
// -ldflags are required.
package version

import "runtime/debug"

// AppName is the application name used in version strings.
const AppName = "painscope"

// Version is the short git commit hash from build info, or "dev" when
// build info is unavailable (e.g. `go test`, non-git builds).
var Version = initVersion()

func initVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	for _, s := range info.Settings {
		if s.Key == "vcs.revision" && s.Value != "" {
			if len(s.Value) > 8 {
				return s.Value[:8]
			}
			return s.Value
		}
	}
	return "dev"
}

// Full returns "painscope/<commit>" for user-agent strings and logging.
func Full() string {
	return AppName + "/" + Version
}
