package main

import (
	"os"

	brainmemcmder "github.com/omnii-ai/brainmem/cmd/brainmem"
)

func main() {
	cmd := brainmemcmder.NewBrainmemCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
