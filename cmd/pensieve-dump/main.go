// Copyright The pensieve-go Authors
// SPDX-License-Identifier: Apache-2.0

// pensieve-dump decodes a pensieve capture, prints its allocations and
// summarizes the heaviest allocation sites.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	log "github.com/sirupsen/logrus"

	"github.com/pensieve-profiler/pensieve-go/reader"
	"github.com/pensieve-profiler/pensieve-go/records"
	"github.com/pensieve-profiler/pensieve-go/source"
)

type exitCode int

const (
	exitSuccess exitCode = 0
	exitFailure exitCode = 1

	// Go 'flag' package calls os.Exit(2) on flag parse errors, if ExitOnError is set
	exitParseError exitCode = 2
)

// site aggregates the allocations recorded under one deduplicated stack.
type site struct {
	index records.TraceIndex
	count uint64
	bytes uint64
}

func main() {
	os.Exit(int(mainWithExitCode()))
}

func mainWithExitCode() exitCode {
	args, err := parseArgs()
	if err != nil {
		return parseError("Failure to parse arguments: %v", err)
	}

	if args.verbose {
		log.SetLevel(log.DebugLevel)
	}

	if code := sanityCheck(args); code != exitSuccess {
		return code
	}

	src, err := openSource(args)
	if err != nil {
		return failure("Failed to open capture: %v", err)
	}

	r, err := reader.New(src)
	if err != nil {
		_ = src.Close()
		return failure("Failed to read capture: %v", err)
	}
	defer r.Close()

	header := r.Header()
	fmt.Printf("Command line: %s\n", header.CommandLine)
	fmt.Printf("Capture version: %d, native traces: %v\n",
		header.Version, header.NativeTraces)
	fmt.Printf("Recorded: %s allocations, %s frames\n",
		humanize.Comma(int64(header.Stats.TotalAllocations)),
		humanize.Comma(int64(header.Stats.TotalFrames)))

	if args.native && !header.NativeTraces {
		log.Warnf("Capture carries no native traces, ignoring -native")
		args.native = false
	}

	sites := make(map[records.TraceIndex]*site)
	byAllocator := make(map[records.Allocator]uint64)
	var decoded uint64

	for args.limit == 0 || decoded < args.limit {
		alloc, err := r.NextAllocation()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return failure("Capture decoding failed: %v", err)
		}
		decoded++
		byAllocator[alloc.Allocator]++

		if !alloc.Allocator.IsDeallocation() {
			s := sites[alloc.TraceIndex]
			if s == nil {
				s = &site{index: alloc.TraceIndex}
				sites[alloc.TraceIndex] = s
			}
			s.count++
			s.bytes += alloc.Size
		}

		if args.allocations {
			printAllocation(r, alloc, args)
		}
	}

	printSummary(r, args, decoded, sites, byAllocator)
	return exitSuccess
}

func openSource(args *arguments) (io.ReadCloser, error) {
	if args.connect != "" {
		return source.Dial(args.connect)
	}
	return source.Open(args.input)
}

func printAllocation(r *reader.Reader, alloc *records.Allocation, args *arguments) {
	fmt.Printf("%s: tid=%d addr=0x%x size=%s\n",
		alloc.Allocator, alloc.TID, alloc.Address, humanize.Bytes(alloc.Size))
	for _, frame := range r.WalkPythonStack(alloc.TraceIndex, args.maxDepth) {
		fmt.Printf("    at %s (%s:%d)\n", frame.Function, frame.File, frame.Lineno)
	}
	if !args.native || alloc.NativeFrameID == 0 {
		return
	}
	for _, frame := range r.WalkNativeStack(alloc.NativeFrameID, alloc.Generation,
		args.maxDepth) {
		location := frame.File
		if frame.Lineno > 0 {
			location = fmt.Sprintf("%s:%d", frame.File, frame.Lineno)
		}
		fmt.Printf("    in %s (%s)\n", frame.Function, location)
	}
}

func printSummary(r *reader.Reader, args *arguments, decoded uint64,
	sites map[records.TraceIndex]*site, byAllocator map[records.Allocator]uint64) {
	fmt.Printf("\nDecoded %s allocation record(s)\n", humanize.Comma(int64(decoded)))

	kinds := make([]records.Allocator, 0, len(byAllocator))
	for kind := range byAllocator {
		kinds = append(kinds, kind)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, kind := range kinds {
		fmt.Printf("  %-16s %s\n", kind, humanize.Comma(int64(byAllocator[kind])))
	}

	ranked := make([]*site, 0, len(sites))
	for _, s := range sites {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].bytes != ranked[j].bytes {
			return ranked[i].bytes > ranked[j].bytes
		}
		return ranked[i].count > ranked[j].count
	})
	if len(ranked) > args.top {
		ranked = ranked[:args.top]
	}
	if len(ranked) == 0 {
		return
	}

	fmt.Printf("\nTop %d allocation sites by total size:\n", len(ranked))
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Location", "Allocations", "Total Size"})
	for _, s := range ranked {
		table.Append([]string{
			formatSite(r, s.index),
			humanize.Comma(int64(s.count)),
			humanize.Bytes(s.bytes),
		})
	}
	table.Render()
}

// formatSite renders the deepest frame of a site's stack.
func formatSite(r *reader.Reader, index records.TraceIndex) string {
	stack := r.WalkPythonStack(index, 1)
	if len(stack) == 0 {
		return "<no Python stack>"
	}
	return fmt.Sprintf("%s (%s:%d)", stack[0].Function, stack[0].File, stack[0].Lineno)
}

func sanityCheck(args *arguments) exitCode {
	if (args.input == "") == (args.connect == "") {
		return parseError("Specify exactly one of -input or -connect")
	}
	if args.top < 1 {
		return parseError("Invalid argument for top: %d", args.top)
	}
	if args.maxDepth < 1 {
		return parseError("Invalid argument for max-depth: %d", args.maxDepth)
	}
	return exitSuccess
}

func parseError(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitParseError
}

func failure(msg string, args ...any) exitCode {
	log.Errorf(msg, args...)
	return exitFailure
}
