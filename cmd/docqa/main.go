// cmd/docqa/main.go
package main

import (
	"github.com/joho/godotenv"

	cmd "github.com/mwiater/docqa/internal/commands"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	loadEnv        = func() error { return godotenv.Load() }
	setVersionInfo = cmd.SetVersionInfo
	executeCmd     = cmd.Execute
)

// main loads a .env file when present, then hands off to the cobra root command.
func main() {
	// A missing .env is normal; provider keys may already be in the environment.
	_ = loadEnv()
	setVersionInfo(version, commit, date)
	executeCmd()
}
