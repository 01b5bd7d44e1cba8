package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"bist-sentinel/internal/cli"
)

func main() {
	// Best effort: a missing .env just means the tokens come from the
	// real environment or the config file.
	_ = godotenv.Load()

	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
