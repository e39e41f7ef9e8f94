package main

import (
	"context"
	"os"

	"execengine/internal/hookrunner"
)

func run(ctx context.Context, cfg envConfig) (int, error) {
	return hookrunner.Run(ctx, hookrunner.Config{
		WorkDir:      cfg.WorkDir,
		MainFile:     cfg.MainFile,
		StaticParams: cfg.StaticParams,
		HooksDir:     cfg.HooksDir,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
	})
}
