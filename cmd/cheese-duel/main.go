package main

import (
	"errors"
	"io/fs"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/park285/cheese-duel/internal/cli"
	"github.com/park285/cheese-duel/internal/obslog"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("warning: failed to load .env file: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Printf("warning: logger init failed, using defaults: %v", err)
	}
	defer obslog.Sync()

	if err := cli.NewRootCommand().Execute(); err != nil {
		obslog.Sync()
		os.Exit(1)
	}
}
