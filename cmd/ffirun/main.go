package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"

	ffibridge "github.com/wippyai/ffi-bridge"
	"github.com/wippyai/ffi-bridge/bridge"
	"github.com/wippyai/ffi-bridge/dynlib"
	"github.com/wippyai/ffi-bridge/host"
	"github.com/wippyai/ffi-bridge/internal/script"
	"github.com/wippyai/ffi-bridge/wasmlib"
)

func main() {
	var (
		scriptFile  = flag.String("script", "", "Path to a YAML call script")
		libPath     = flag.String("lib", "", "Library to load (overrides the script's library)")
		schema      = flag.Bool("schema", false, "Print the call script JSON schema and exit")
		list        = flag.Bool("list", false, "List registered functions and exit")
		interactive = flag.Bool("i", false, "Interactive mode with TUI")
		verbose     = flag.Bool("v", false, "Verbose logging")
	)
	flag.Parse()

	if *schema {
		out, err := script.Schema()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(out))
		return
	}

	if *scriptFile == "" {
		fmt.Fprintln(os.Stderr, "Usage: ffirun -script <calls.yaml> [-lib path] [-v]")
		fmt.Fprintln(os.Stderr, "       ffirun -script <calls.yaml> -list")
		fmt.Fprintln(os.Stderr, "       ffirun -script <calls.yaml> -i  (interactive mode)")
		fmt.Fprintln(os.Stderr, "       ffirun -schema")
		os.Exit(1)
	}

	if *verbose {
		if err := setupLogging(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}

	if *interactive {
		if !term.IsTerminal(int(os.Stdout.Fd())) {
			fmt.Fprintln(os.Stderr, "Error: interactive mode needs a terminal")
			os.Exit(1)
		}
		if err := runInteractive(*scriptFile, *libPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := run(*scriptFile, *libPath, *list); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogging() error {
	log, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	bridge.SetLogger(log)
	dynlib.SetLogger(log.Named("dynlib"))
	wasmlib.SetLogger(log.Named("wasmlib"))
	return nil
}

// load parses the script and opens its library. A library path starting with
// ./ or ../ is taken relative to the script's directory.
func load(ctx context.Context, scriptFile, libOverride string) (*script.Script, ffibridge.Library, error) {
	s, err := script.Load(scriptFile)
	if err != nil {
		return nil, nil, err
	}

	path := s.Library
	if libOverride != "" {
		path = libOverride
	} else if strings.HasPrefix(path, "./") || strings.HasPrefix(path, "../") {
		path = filepath.Join(filepath.Dir(scriptFile), path)
	}
	if path == "" {
		path = os.Getenv(host.EnvLibrary)
	}
	if path == "" {
		return nil, nil, fmt.Errorf("no library: set it in the script, with -lib or %s", host.EnvLibrary)
	}

	lib, err := host.OpenLibrary(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	return s, lib, nil
}

func run(scriptFile, libOverride string, listOnly bool) error {
	ctx := context.Background()

	s, lib, err := load(ctx, scriptFile, libOverride)
	if err != nil {
		return err
	}
	defer lib.Close(ctx)

	reg := bridge.New(lib)

	if listOnly {
		if _, err := s.Register(reg); err != nil {
			return fmt.Errorf("register: %w", err)
		}
		fmt.Printf("Functions:\n")
		for _, name := range reg.Functions() {
			fn, _ := reg.Function(name)
			fmt.Printf("  %s%s\n", name, fn.Signature())
		}
		return nil
	}

	results, err := s.Run(ctx, reg)
	for _, r := range results {
		fmt.Println(r)
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", scriptFile, err)
	}
	return nil
}
