package main

import (
	"os"

	"github.com/raine/kanda-client/internal/cli"
	"github.com/rs/zerolog"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	os.Exit(cli.Execute())
}
