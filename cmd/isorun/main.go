package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"golang.org/x/term"

	"github.com/wippyai/isolates/engine"
	"github.com/wippyai/isolates/isolate"
	"github.com/wippyai/isolates/snapshot"
)

func main() {
	var (
		wasmFile    = flag.String("wasm", "", "Path to wasm script file")
		memoryMB    = flag.Uint64("memory", 0, "Heap limit in MB (default 128, minimum 8)")
		seedFile    = flag.String("seed", "", "Snapshot image to seed the isolate from")
		snapOut     = flag.String("snapshot", "", "Build a snapshot image from the script and write it here")
		cacheFile   = flag.String("cache", "", "Compilation cache file (consulted if present, written otherwise)")
		globalName  = flag.String("global", "", "Global to read from the context after the run")
		stats       = flag.Bool("stats", false, "Print heap statistics after the run")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
	)
	flag.Parse()

	if *wasmFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: isorun -wasm <file.wasm> [-memory MB] [-seed image] [-cache file] [-global name] [-stats]")
		fmt.Fprintln(os.Stderr, "       isorun -wasm <file.wasm> -snapshot <out.img>")
		fmt.Fprintln(os.Stderr, "       isorun -wasm <file.wasm> -i  (interactive mode)")
		os.Exit(1)
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode requires a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*wasmFile, *memoryMB); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*wasmFile, *memoryMB, *seedFile, *snapOut, *cacheFile, *globalName, *stats); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(wasmFile string, memoryMB uint64, seedFile, snapOut, cacheFile, globalName string, showStats bool) error {
	ctx := context.Background()

	code, err := os.ReadFile(wasmFile)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	eng := engine.NewWazeroEngine()
	defer eng.Close(ctx)

	// Snapshot build is a separate mode: run the script as a setup script
	// and write the resulting image.
	if snapOut != "" {
		image, err := snapshot.Build(ctx, eng, []snapshot.Script{{Code: code, Filename: wasmFile}}, nil)
		if err != nil {
			return fmt.Errorf("build snapshot: %w", err)
		}
		if err := os.WriteFile(snapOut, image, 0o644); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
		fmt.Printf("Snapshot: %s (%d bytes)\n", snapOut, len(image))
		return nil
	}

	opts := isolate.Options{MemoryLimitMB: memoryMB}
	if seedFile != "" {
		seed, err := os.ReadFile(seedFile)
		if err != nil {
			return fmt.Errorf("read seed image: %w", err)
		}
		opts.Snapshot = seed
	}

	iso, err := isolate.New(ctx, eng, opts)
	if err != nil {
		return fmt.Errorf("create isolate: %w", err)
	}
	defer func() {
		iso.Dispose()
		<-iso.Terminated()
	}()

	sopts := isolate.ScriptOptions{Filename: wasmFile}
	if cacheFile != "" {
		if blob, err := os.ReadFile(cacheFile); err == nil {
			sopts.CachedCode = blob
		} else {
			sopts.ProduceCachedCode = true
		}
	}

	script, err := iso.CompileScript(ctx, code, sopts)
	if err != nil {
		return fmt.Errorf("compile: %w", err)
	}
	defer script.Release()

	if sopts.ProduceCachedCode {
		if blob := script.CachedData(); len(blob) > 0 {
			if err := os.WriteFile(cacheFile, blob, 0o644); err != nil {
				return fmt.Errorf("write cache: %w", err)
			}
			fmt.Printf("Cache: wrote %s (%d bytes)\n", cacheFile, len(blob))
		}
	}
	if script.CachedDataRejected() {
		fmt.Printf("Cache: %s rejected, compiled from source\n", cacheFile)
	}

	c, err := iso.CreateContext(ctx)
	if err != nil {
		return fmt.Errorf("create context: %w", err)
	}
	defer c.Release()

	result, err := script.Run(ctx, c)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	fmt.Printf("Result: %v\n", result.Interface())

	if globalName != "" {
		v, err := c.Global(ctx, globalName)
		if err != nil {
			return fmt.Errorf("read global: %w", err)
		}
		fmt.Printf("Global %s: %v\n", globalName, v.Interface())
	}

	if showStats {
		st, err := iso.HeapStatistics(ctx)
		if err != nil {
			return fmt.Errorf("heap statistics: %w", err)
		}
		fmt.Printf("\nHeap statistics:\n")
		fmt.Printf("  total:     %d\n", st.TotalHeapSize)
		fmt.Printf("  used:      %d\n", st.UsedHeapSize)
		fmt.Printf("  code:      %d\n", st.CodeSize)
		fmt.Printf("  limit:     %d\n", st.HeapSizeLimit)
		fmt.Printf("  reserved:  %d\n", st.ExternallyAllocatedSize)
		fmt.Printf("  scopes:    %d\n", st.ScopeCount)
		fmt.Printf("  programs:  %d\n", st.ProgramCount)
	}

	return nil
}
