// Command alogmd renders an Artisan .alog profile as a markdown report.
package main

import (
	"os"

	"artisanbridge/internal/roastlog"
)

func main() {
	os.Exit(roastlog.RunCLI("alogmd", os.Args[1:], os.Stdout, os.Stderr, roastlog.RenderAlog))
}
