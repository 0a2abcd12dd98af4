// Command brokerctl is a thin client against a running brokerd's control
// API: it resolves the daemon's address the way rig resolves its log
// directory (an env var, falling back to a well-known home-directory path)
// and dispatches to one of a handful of subcommands.
package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "nodes":
		err = runNodes(os.Args[2:])
	case "services":
		err = runServices(os.Args[2:])
	case "actions":
		err = runActions(os.Args[2:])
	case "health":
		err = runHealth(os.Args[2:])
	case "call":
		err = runCall(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "brokerctl: unknown command %q\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "brokerctl %s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: brokerctl <command> [flags]

Commands:
  nodes                  List cluster nodes known to the daemon
  services               List services registered per node
  actions                List every action name in the registry
  health                 Show the daemon's uptime and runtime stats
  call [-params json] <action>
                         Call an action with optional JSON params (-params or stdin)

Run 'brokerctl <command> --help' for command-specific flags.
`)
}
