package main

import (
	"os"

	"github.com/coolnight20187/python-7ty-system/internal/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.WithComponent("main").Error(err)
		os.Exit(1)
	}
}
