// Command sandbox serves live-coding demos: editable code boxes next to a
// preview that re-renders as you type.
package main

import (
	"fmt"
	"os"

	"github.com/livetemplate/sandbox/cmd/sandbox/commands"
)

const version = "0.1.0-dev"

func main() {
	os.Exit(run())
}

func run() int {
	if len(os.Args) < 2 {
		printUsage()
		return 1
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "serve":
		err = commands.ServeCommand(args)
	case "demos":
		err = commands.DemosCommand(args)
	case "show":
		err = commands.ShowCommand(args)
	case "version":
		fmt.Printf("sandbox version %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		return 1
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func printUsage() {
	fmt.Println("sandbox - Live-coding demos with instant preview")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  sandbox serve [directory]        Start the sandbox server")
	fmt.Println("  sandbox demos [directory]        List available demos")
	fmt.Println("  sandbox show <demo> [directory]  Print a demo definition")
	fmt.Println("  sandbox version                  Show version")
	fmt.Println("  sandbox help                     Show this help")
	fmt.Println()
	fmt.Println("Flags:")
	fmt.Println("  -c, --config <file>   Config file (default: <directory>/sandbox.yaml)")
	fmt.Println("  -p, --port <port>     Port to listen on (serve)")
	fmt.Println("      --host <host>     Host to listen on (serve)")
	fmt.Println("  -w, --watch           Reload demos when their files change (serve)")
	fmt.Println("      --debug           Verbose logging")
	fmt.Println("      --format <fmt>    Output format: text, json or yaml (demos, show)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  sandbox serve                    # Serve demos from ./demos")
	fmt.Println("  sandbox serve ./talk --watch     # Serve with hot reload")
	fmt.Println("  sandbox demos --format json      # List demos as JSON")
	fmt.Println("  sandbox show counter --format yaml")
}
