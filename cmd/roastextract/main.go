// Command roastextract renders the labeled fields and timestamped events of a
// free-form roast log as markdown.
package main

import (
	"os"
	"time"

	"artisanbridge/internal/roastlog"
)

func main() {
	os.Exit(roastlog.RunCLI("roastextract", os.Args[1:], os.Stdout, os.Stderr, roastlog.RoastRenderer(time.Now)))
}
