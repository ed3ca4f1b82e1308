package main

import (
	"os"

	"modernity/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
