package main

import (
	"fmt"
	"os"

	"github.com/spec-kit/msp-sla/internal/cli/slactl"
)

func main() {
	if err := slactl.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
