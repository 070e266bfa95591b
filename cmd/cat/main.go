package main

import (
	"os"

	"github.com/cowwoc/cat/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
