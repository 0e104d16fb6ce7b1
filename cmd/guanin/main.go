package main

import (
	"fmt"
	"os"
)

const usageText = `guanin runs the nanostring analysis pipeline.

Usage:
  guanin <command> [flags]

Commands:
  run       run the pipeline from load through a stage
  ui        run the terminal UI
  params    print session parameters as a preset
  history   list recorded stage runs
  config    print configuration (effective or defaults)
  help      show help

Flags:
  -h, --help   show help

Session flags (run, ui, params):
  --params <file>       apply a YAML parameter preset
  --set name=value      set one parameter (repeatable)
  --debug               log at debug level

Examples:
  guanin run --set input.folder=~/rcc --until contentnorm
  guanin ui --params preset.yaml
  guanin params --set qc.background=manual --set qc.manual_background=40
  guanin history --session <id>
  guanin config --default --format toml
`

func printUsage() {
	fmt.Fprint(os.Stderr, usageText)
}

func main() {
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		return
	}

	wiring := defaultCommandWiring(os.Stdout, os.Stderr)
	commands := buildCommands(wiring)

	switch args[0] {
	case "-h", "--help", "help":
		printUsage()
		return
	}

	runner, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", args[0])
		printUsage()
		os.Exit(2)
	}
	exitOnErr(args[0], runner.Run(args[1:]), wiring.stderr)
}
