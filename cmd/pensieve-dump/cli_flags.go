// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"flag"
	"os"

	"github.com/peterbourgon/ff/v3"
)

const (
	// Default values for CLI flags
	defaultArgTop      = 10
	defaultArgMaxDepth = 64
)

// Help strings for command line arguments
var (
	allocationsHelp = "Print every decoded allocation together with its Python stack."
	connectHelp     = "Address of a live tracked process in the format of host:port. " +
		"Mutually exclusive with -input."
	inputHelp = "Path to a capture file. Compressed captures are decompressed " +
		"transparently. Mutually exclusive with -connect."
	limitHelp    = "Stop after this many allocation records. 0 reads the whole capture."
	maxDepthHelp = "Maximum number of stack frames to walk per allocation."
	nativeHelp   = "Resolve and print native stacks for captures that carry them."
	topHelp      = "Number of allocation sites to show in the summary table."
	verboseHelp  = "Enable verbose logging and debugging capabilities."
)

type arguments struct {
	allocations bool
	connect     string
	input       string
	limit       uint64
	maxDepth    int
	native      bool
	top         int
	verbose     bool
}

func parseArgs() (*arguments, error) {
	var args arguments

	fs := flag.NewFlagSet("pensieve-dump", flag.ExitOnError)

	// Please keep the parameters ordered alphabetically in the source-code.
	fs.BoolVar(&args.allocations, "allocations", false, allocationsHelp)
	fs.StringVar(&args.connect, "connect", "", connectHelp)
	fs.StringVar(&args.input, "input", "", inputHelp)
	fs.Uint64Var(&args.limit, "limit", 0, limitHelp)
	fs.IntVar(&args.maxDepth, "max-depth", defaultArgMaxDepth, maxDepthHelp)
	fs.BoolVar(&args.native, "native", false, nativeHelp)
	fs.IntVar(&args.top, "top", defaultArgTop, topHelp)
	fs.BoolVar(&args.verbose, "v", false, "Shorthand for -verbose.")
	fs.BoolVar(&args.verbose, "verbose", false, verboseHelp)

	fs.Usage = func() {
		fs.PrintDefaults()
	}

	return &args, ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("PENSIEVE"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
		// Ignore configuration file (only) options that this tool
		// does not recognize.
		ff.WithIgnoreUndefined(true),
		ff.WithAllowMissingConfigFile(true),
	)
}
