package main

import (
	"os"

	"github.com/imago-ai/imago/cmd/imago"
)

func main() {
	if err := imago.Execute(); err != nil {
		os.Exit(1)
	}
}
