// Package main is the entry point for elastic-load.
package main

import (
	"os"

	"elastic-load/internal/loaderrors"
	"elastic-load/internal/logger"
)

var (
	version = "dev"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		logger.Error("", "%v", err)
		os.Exit(loaderrors.ExitCode(err))
	}
}
