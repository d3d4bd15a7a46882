package main

import (
	"flag"
	"fmt"
	"io"

	"github.com/krobelus/remacs/gowrap"
)

// handleWrapCommand processes the `remacs wrap` subcommand.
// Usage:
//
//	remacs wrap                    # the package in the current directory
//	remacs wrap ./prims/text       # a package by pattern
//	remacs wrap -o exports.go .    # custom output file
func handleWrapCommand(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("remacs wrap", flag.ContinueOnError)
	fs.SetOutput(stderr)
	output := fs.String("o", "", "Output file (default: zz_exports.go in the package directory)")
	verbose := fs.Bool("v", false, "Verbose output")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	pattern := "."
	switch fs.NArg() {
	case 0:
	case 1:
		pattern = fs.Arg(0)
	default:
		fmt.Fprintln(stderr, "Usage: remacs wrap [-o file] [package]")
		return 2
	}

	model, path, err := gowrap.Wrap(pattern, "", *output)
	if err != nil {
		fmt.Fprintf(stderr, "Error wrapping %s: %v\n", pattern, err)
		return 1
	}

	if *verbose {
		fmt.Fprintf(stdout, "Wrapped %d function(s) from %s\n", len(model.Functions), model.ImportPath)
		for _, fn := range model.Functions {
			fmt.Fprintf(stdout, "  %s -> %s\n", fn.GoName, fn.LispName)
		}
		fmt.Fprintf(stdout, "Wrote %s\n", path)
	}
	return 0
}
