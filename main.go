package main

import (
	"os"

	"echotree/infrastructure/logger"
	"echotree/interfaces/cli"
)

func recoverPanic() {
	if err := recover(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Application panic recovered")
		os.Exit(2)
	}
}

func main() {
	defer recoverPanic()

	if err := cli.Execute(); err != nil {
		logger.GetLogger().WithField("error", err).Error("Command failed")
		os.Exit(1)
	}
}
