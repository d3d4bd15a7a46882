// remacs boots the bridge against the reference host and serves one
// request: list, call, dump, check a dump, or run the language server.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tliron/commonlog"

	"github.com/krobelus/remacs/manifest"
	"github.com/krobelus/remacs/pdump"
	"github.com/krobelus/remacs/server"

	_ "github.com/tliron/commonlog/simple"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "wrap" {
		return handleWrapCommand(args[1:], stdout, stderr)
	}

	fs := flag.NewFlagSet("remacs", flag.ContinueOnError)
	fs.SetOutput(stderr)
	dir := fs.String("C", ".", "Directory to search for remacs.toml")
	verbose := fs.Bool("v", false, "Verbose output")
	list := fs.Bool("list", false, "List the installed primitives")
	call := fs.String("call", "", "Call the named primitive with the remaining arguments")
	dump := fs.String("dump", "", "Write the primitive table to a portable dump file")
	checkDump := fs.String("check-dump", "", "Compare a portable dump file with the installed primitives")
	lsp := fs.Bool("lsp", false, "Serve primitive documentation over LSP on stdio")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: remacs [options] [args...]\n")
		fmt.Fprintf(stderr, "       remacs wrap [-o file] [package]\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(stderr, "\nExamples:\n")
		fmt.Fprintf(stderr, "  remacs -list                           # Show every primitive\n")
		fmt.Fprintf(stderr, "  remacs -call string-length héllo       # Prints 5\n")
		fmt.Fprintf(stderr, "  remacs -call secure-hash \"'sha1\" abc   # Symbols are quoted\n")
		fmt.Fprintf(stderr, "  remacs -dump prims.rdmp                # Record the primitive table\n")
		fmt.Fprintf(stderr, "  remacs -check-dump prims.rdmp          # Report what changed since\n")
		fmt.Fprintf(stderr, "  remacs wrap ./prims/text               # Regenerate zz_exports.go\n")
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading manifest: %v\n", err)
		return 1
	}
	if m == nil {
		m = manifest.Default()
	}

	verbosity := m.Log.Verbosity
	if *verbose {
		verbosity++
	}
	commonlog.Configure(verbosity, m.LogPath())

	rt, err := server.Boot(m)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer rt.Close()

	if *verbose {
		fmt.Fprintf(stderr, "%s: %d primitives from %s\n", m.Bridge.Name, rt.Registry.Len(), strings.Join(rt.Libraries, ", "))
	}

	switch {
	case *list:
		listPrimitives(rt, stdout)
		return 0

	case *call != "":
		worker := server.NewEvalWorker(rt)
		defer worker.Stop()
		out, err := worker.Call(*call, fs.Args()...)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Fprintln(stdout, out)
		return 0

	case *dump != "":
		d, err := pdump.Build(m.Bridge.Name, rt.Heap.Layout(), rt.Registry)
		if err == nil {
			err = pdump.WriteFile(*dump, d)
		}
		if err != nil {
			fmt.Fprintf(stderr, "Error writing dump: %v\n", err)
			return 1
		}
		if *verbose {
			fmt.Fprintf(stderr, "Wrote %d primitives to %s\n", len(d.Primitives), *dump)
		}
		return 0

	case *checkDump != "":
		return checkDumpFile(rt, *checkDump, stdout, stderr)

	case *lsp:
		worker := server.NewEvalWorker(rt)
		if err := server.NewLSP(worker).Run(); err != nil {
			fmt.Fprintf(stderr, "LSP error: %v\n", err)
			return 1
		}
		return 0
	}

	fs.Usage()
	return 2
}

func listPrimitives(rt *server.Runtime, w io.Writer) {
	for _, d := range rt.Registry.Descriptors() {
		doc, _, _ := strings.Cut(d.Doc(), "\n")
		marker := " "
		if d.IsCommand() {
			marker = "*"
		}
		fmt.Fprintf(w, "%s %-48s %s\n", marker, d.Usage(), doc)
	}
	for _, v := range rt.Registry.Variables() {
		doc, _, _ := strings.Cut(v.Doc, "\n")
		fmt.Fprintf(w, "  %-48s %s\n", v.Name, doc)
	}
}

// checkDumpFile reports how the installed primitives differ from a dump.
// It fails when the dump was made against another layout or when anything
// changed.
func checkDumpFile(rt *server.Runtime, path string, stdout, stderr io.Writer) int {
	layout := rt.Heap.Layout()
	old, err := pdump.ReadFile(path, layout)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	cur, err := pdump.Build(rt.Manifest.Bridge.Name, layout, rt.Registry)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	changes := pdump.Diff(old, cur)
	for _, c := range changes {
		fmt.Fprintln(stdout, c)
	}
	if len(changes) > 0 {
		return 1
	}
	fmt.Fprintf(stdout, "%s: %d primitives unchanged\n", path, len(cur.Primitives))
	return 0
}
