package main

import (
	"os"

	"github.com/risktor/risktor/cmd/risktor/commands"
	"github.com/risktor/risktor/pkg/pipeline"
)

func main() {
	if err := commands.NewCommand().Execute(); err != nil {
		os.Exit(pipeline.ErrorCode(err))
	}
}
