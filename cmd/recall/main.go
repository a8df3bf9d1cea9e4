package main

import (
	"os"

	"github.com/recallhq/recall/internal/cmd"
)

func main() {
	os.Exit(cmd.Main(os.Args))
}
