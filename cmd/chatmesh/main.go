// Command chatmesh runs multi-turn conversations against the configured
// models, either as an interactive terminal session or as an HTTP service.
//
// Configuration comes from CHATMESH_* environment variables (an optional
// .env file in the working directory is loaded first) and command flags.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	if err := buildRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
