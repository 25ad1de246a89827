// Command chatrelay relays WhatsApp messages to a local Ollama model.
package main

import (
	"fmt"
	"os"

	"chatrelay/internal/cli"
	"chatrelay/pkg/logger"
)

func main() {
	err := cli.NewRootCmd().Execute()
	_ = logger.Close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
