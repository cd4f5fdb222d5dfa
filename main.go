package main

import (
	"fmt"
	"os"

	"github.com/tphakala/camcore/cmd"
	"github.com/tphakala/camcore/internal/conf"
)

func main() {
	settings := &conf.Settings{}
	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
