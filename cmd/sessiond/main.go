package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRoot() *cobra.Command {
	registerFlags := &RegisterFlags{}
	unregisterFlags := &UnregisterFlags{}
	statusFlags := &StatusFlags{}
	cleanupFlags := &CleanupFlags{}
	serveFlags := &ServeFlags{}

	root := createRootCommand()
	root.AddCommand(
		createRegisterCommand(registerFlags),
		createUnregisterCommand(unregisterFlags),
		createStatusCommand(statusFlags),
		createCleanupCommand(cleanupFlags),
		createServeCommand(serveFlags),
	)
	return root
}
