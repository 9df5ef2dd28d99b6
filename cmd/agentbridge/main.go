// Package main provides the agentbridge command line tool: an HTTP bridge
// that drives a third-party conversational agent through a cloud browser.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	root := &cobra.Command{
		Use:     "agentbridge",
		Short:   "Bridge prompts to a remote conversational agent via a cloud browser",
		Version: version,
		Long: `agentbridge automates a third-party conversational web agent through a
cloud browser session. Prompts are typed into the agent's composer and its
answer is detected either by a completion sentinel in the conversation DOM
or by visual polling with an external judge.`,
		SilenceUsage: true,
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newAskCmd())
	root.AddCommand(newValidateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
