package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/Ning0612/Hotfolder/internal/logger"
)

func main() {
	cmd := newRootCommand()
	err := cmd.Execute()
	logger.Shutdown()
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
