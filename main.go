package main

import (
	"os"

	"github.com/deploymenttheory/go-flash-composer/cmd"
	"github.com/deploymenttheory/go-flash-composer/internal/logger"
)

func main() {
	err := cmd.Execute()

	// Ensure logs are flushed before exit
	_ = logger.Sync()

	if err != nil {
		os.Exit(1)
	}
}
