// Command rpa extracts and inspects Ren'Py RPA-3.0 archives.
//
// Usage:
//
//	rpa extract [-workers n] [-keep-going] [-v] <archive> [<dest>]
//	rpa list [-digest] [-v] <archive>
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/renkit/rpa"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		usage()
		return 2
	}
	switch args[0] {
	case "extract":
		return runExtract(args[1:])
	case "list":
		return runList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "rpa: unknown command %q\n", args[0])
		usage()
		return 2
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `usage:
  rpa extract [-workers n] [-keep-going] [-v] <archive> [<dest>]
  rpa list [-digest] [-v] <archive>
`)
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func runExtract(args []string) int {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	workers := fs.Int("workers", 0, "extraction workers (0 = one per CPU)")
	keepGoing := fs.Bool("keep-going", false, "continue past per-member failures and report them all")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Parse(args) //nolint:errcheck // ExitOnError

	if fs.NArg() < 1 || fs.NArg() > 2 {
		usage()
		return 2
	}
	archivePath := fs.Arg(0)
	dest := "."
	if fs.NArg() == 2 {
		dest = fs.Arg(1)
	}

	logger := newLogger(*verbose)

	f, err := rpa.Open(archivePath, rpa.WithLogger(logger))
	if err != nil {
		logger.Error("open failed", "archive", archivePath, "error", err)
		return 1
	}
	defer f.Close()

	opts := []rpa.ExtractOption{
		rpa.ExtractWithWorkers(*workers),
		rpa.ExtractWithContinueOnError(*keepGoing),
	}
	result, err := f.ExtractAll(context.Background(), dest, opts...)
	for _, fail := range result.Failed {
		logger.Error("member failed", "name", fail.Name, "error", fail.Err)
	}
	if err != nil {
		logger.Error("extraction failed", "archive", archivePath, "error", err)
		return 1
	}

	logger.Info("extraction complete", "members", result.Extracted, "dest", dest)
	return 0
}

func runList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	withDigest := fs.Bool("digest", false, "print each member's content digest")
	verbose := fs.Bool("v", false, "debug logging")
	fs.Parse(args) //nolint:errcheck // ExitOnError

	if fs.NArg() != 1 {
		usage()
		return 2
	}
	archivePath := fs.Arg(0)

	logger := newLogger(*verbose)

	f, err := rpa.Open(archivePath, rpa.WithLogger(logger))
	if err != nil {
		logger.Error("open failed", "archive", archivePath, "error", err)
		return 1
	}
	defer f.Close()

	for _, entry := range f.Entries() {
		if *withDigest {
			dg, err := f.Digest(entry.Name)
			if err != nil {
				logger.Error("digest failed", "name", entry.Name, "error", err)
				return 1
			}
			fmt.Printf("%s  %10d  %s\n", dg, entry.Size, entry.Name)
			continue
		}
		fmt.Printf("%10d  %s\n", entry.Size, entry.Name)
	}
	return 0
}
