package version

import (
	"fmt"
	"runtime"
	"time"
)

// Set with -ldflags "-X github.com/MrSnakeDoc/clusterview/internal/version.Version=...".
var (
	Version   = "dev"                           // ex: v0.3.1
	Commit    = "none"                          // ex: abcd123
	BuildDate = time.Now().Format(time.RFC3339) // ex: 2026-03-02T09:15:00Z
	GoVersion = runtime.Version()
)

// String is the one-line build description logged at startup.
func String() string {
	return fmt.Sprintf("clusterview %s (commit=%s, built=%s, go=%s)", Version, Commit, BuildDate, GoVersion)
}
