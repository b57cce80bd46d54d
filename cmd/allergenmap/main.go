// Command allergenmap serves the allergen tree map over HTTP and renders or exports
// datasets from the command line.
package main

import (
	"errors"
	"fmt"
	"os"

	"allergen-map/internal/common"
)

// Exit codes
const (
	ExitGeneral  = 1
	ExitConfig   = 2
	ExitNotFound = 3
	ExitData     = 4
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, common.ErrConfig):
		return ExitConfig
	case errors.Is(err, common.ErrNotFound), errors.Is(err, common.ErrNoSelection):
		return ExitNotFound
	case errors.Is(err, common.ErrCorruptData), errors.Is(err, common.ErrOutputTooLarge):
		return ExitData
	default:
		return ExitGeneral
	}
}
