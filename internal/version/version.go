package version

import (
	"fmt"
	"runtime"
)

var (
	CLIName    = "nft"
	CLIVersion = "0.1.0"
	Commit     = "unknown"
	BuildDate  = "unknown"
)

func Long() string {
	return fmt.Sprintf("%s (commit: %s, built: %s, %s/%s)", CLIVersion, Commit, BuildDate, runtime.GOOS, runtime.GOARCH)
}
