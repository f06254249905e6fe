package main

import (
	"os"

	"github.com/krich11/mls-chat/cmd/mlschat/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
