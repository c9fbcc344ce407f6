package main

import (
	"context"
	"fmt"
	"os"

	"github.com/tphakala/fieldlog/cmd"
	"github.com/tphakala/fieldlog/internal/conf"
)

// Set with -ldflags at build time.
var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	settings := &conf.Settings{}
	root := cmd.RootCommand(settings, cmd.BuildInfo{Version: version, BuildDate: buildDate})
	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "fieldlog: %v\n", err)
		os.Exit(1)
	}
}
