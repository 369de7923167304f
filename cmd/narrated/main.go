// Package main provides an interactive terminal player for YAML stories.
// It wires a story file, a storage backend, and an engine into a small
// REPL with rewind, save slots, and export/import.
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/louisbranch/narrative-engine/internal/config"
	"github.com/louisbranch/narrative-engine/internal/engine"
	"github.com/louisbranch/narrative-engine/internal/state/rng"
	"github.com/louisbranch/narrative-engine/internal/storage"
	"github.com/louisbranch/narrative-engine/internal/storage/bbolt"
	"github.com/louisbranch/narrative-engine/internal/storage/memory"
	"github.com/louisbranch/narrative-engine/internal/storage/sqlite"
	"github.com/louisbranch/narrative-engine/internal/story"
)

type envConfig struct {
	Backend string `env:"NARRATED_BACKEND" envDefault:"memory"`
	DBPath  string `env:"NARRATED_DB_PATH" envDefault:"narrated.db"`
	Name    string `env:"NARRATED_NAME" envDefault:""`
	Version string `env:"NARRATED_VERSION" envDefault:"1.0.0"`
}

func main() {
	var cfg envConfig
	if err := config.ParseEnv(&cfg); err != nil {
		config.Exitf("Error: %v", err)
	}

	var storyPath string
	var seedVal int64
	var seedPolicy string
	flag.StringVar(&storyPath, "story", "", "path to the story YAML file (required)")
	flag.StringVar(&cfg.Backend, "backend", cfg.Backend, "storage backend (memory, sqlite, bbolt)")
	flag.StringVar(&cfg.DBPath, "db", cfg.DBPath, "database path for sqlite and bbolt backends")
	flag.StringVar(&cfg.Name, "name", cfg.Name, "engine name (default: story title)")
	flag.Int64Var(&seedVal, "seed", 0, "random seed for reproducibility (0 = random)")
	flag.StringVar(&seedPolicy, "seed-policy", string(rng.PolicyPassage), "seed policy (eachCall, passage, never)")
	flag.Parse()

	if storyPath == "" {
		config.Exitf("Error: -story is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	st, err := story.LoadFile(storyPath)
	if err != nil {
		config.Exitf("Error: load story: %v", err)
	}

	adapter, closer, err := openBackend(cfg)
	if err != nil {
		config.Exitf("Error: open storage: %v", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	name := cfg.Name
	if name == "" {
		name = strings.ToLower(strings.ReplaceAll(st.Title(), " ", "-"))
	}

	engineCfg := engine.Config{
		Name:       name,
		Version:    cfg.Version,
		SeedPolicy: rng.Policy(seedPolicy),
	}
	if seedVal != 0 {
		engineCfg.Seed = &seedVal
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	e, err := engine.New(ctx, engineCfg, st, adapter)
	if err != nil {
		config.Exitf("Error: create engine: %v", err)
	}

	e.Bus().Subscribe(engine.EventMigrationEnded, func(event engine.Event) {
		result, ok := event.Payload.(engine.OperationResult)
		if !ok {
			return
		}
		if result.Type == engine.ResultError {
			logger.Error("save migration failed", "error", result.Err)
			return
		}
		logger.Info("save migrated", "version", cfg.Version)
	})

	if err := run(ctx, e, os.Stdin, os.Stdout); err != nil {
		config.Exitf("Error: %v", err)
	}
}

func openBackend(cfg envConfig) (storage.Adapter, io.Closer, error) {
	switch cfg.Backend {
	case "memory":
		return memory.New(), nil, nil
	case "sqlite":
		store, err := sqlite.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	case "bbolt":
		store, err := bbolt.Open(cfg.DBPath)
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q (memory, sqlite, bbolt)", cfg.Backend)
	}
}

func run(ctx context.Context, e *engine.Engine, in io.Reader, out io.Writer) error {
	fmt.Fprintf(out, "%s\n\n", e.Story().Title())
	printPassage(e, out)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		if ctx.Err() != nil {
			return nil
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == ":quit" || line == ":q" {
			return nil
		}

		if err := dispatch(ctx, e, out, line); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func dispatch(ctx context.Context, e *engine.Engine, out io.Writer, line string) error {
	if !strings.HasPrefix(line, ":") {
		if err := e.NavigateTo(line); err != nil {
			return err
		}
		printPassage(e, out)
		return nil
	}

	fields := strings.Fields(line)
	command, args := fields[0], fields[1:]

	switch command {
	case ":help", ":h":
		printHelp(out)
	case ":look", ":l":
		printPassage(e, out)
	case ":vars":
		printVars(e, out)
	case ":back", ":b":
		e.Backward(argOrDefault(args, 1))
		printPassage(e, out)
	case ":forward", ":f":
		e.Forward(argOrDefault(args, 1))
		printPassage(e, out)
	case ":random", ":r":
		value, err := e.Random()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%.6f\n", value)
	case ":save":
		slot, err := slotArg(args)
		if err != nil {
			return err
		}
		if err := e.SaveSlot(ctx, slot); err != nil {
			return err
		}
		fmt.Fprintf(out, "saved to slot %d\n", slot)
	case ":load":
		slot, err := slotArg(args)
		if err != nil {
			return err
		}
		if err := e.LoadSlot(ctx, slot); err != nil {
			return err
		}
		printPassage(e, out)
	case ":autosave":
		if err := e.Autosave(ctx); err != nil {
			return err
		}
		fmt.Fprintln(out, "autosaved")
	case ":delete":
		slot, err := slotArg(args)
		if err != nil {
			return err
		}
		if err := e.DeleteSlot(ctx, slot); err != nil {
			return err
		}
		fmt.Fprintf(out, "deleted slot %d\n", slot)
	case ":saves":
		return printSaves(ctx, e, out)
	case ":export":
		if len(args) != 1 {
			return fmt.Errorf("usage: :export <file>")
		}
		bundle, err := e.Export(ctx)
		if err != nil {
			return err
		}
		if err := os.WriteFile(args[0], []byte(bundle), 0o600); err != nil {
			return fmt.Errorf("write export: %w", err)
		}
		fmt.Fprintf(out, "exported to %s\n", args[0])
	case ":import":
		if len(args) != 1 {
			return fmt.Errorf("usage: :import <file>")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read export: %w", err)
		}
		if err := e.Import(ctx, string(data)); err != nil {
			return err
		}
		fmt.Fprintln(out, "imported")
	default:
		return fmt.Errorf("unknown command %s (try :help)", command)
	}
	return nil
}

func printPassage(e *engine.Engine, out io.Writer) {
	passage, err := e.CurrentPassage()
	if err != nil {
		fmt.Fprintf(out, "error: %v\n", err)
		return
	}
	fmt.Fprintf(out, "[%s]\n%s\n", passage.Name, passage.Content)
	if len(passage.Links) > 0 {
		fmt.Fprintf(out, "-> %s\n", strings.Join(passage.Links, ", "))
	}
}

func printVars(e *engine.Engine, out io.Writer) {
	vars := e.Vars()
	keys := make([]string, 0, len(vars))
	for key := range vars {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "%s = %v\n", key, vars[key])
	}
}

func printSaves(ctx context.Context, e *engine.Engine, out io.Writer) error {
	infos, err := e.ListSaves(ctx)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		fmt.Fprintln(out, "no saves")
		return nil
	}
	for _, info := range infos {
		label := fmt.Sprintf("slot %d", info.Slot)
		if info.Autosave {
			label = "autosave"
		}
		fmt.Fprintf(out, "%-9s %s @ %s (%s)\n", label, info.Passage,
			info.SavedAt.Format("2006-01-02 15:04"), info.Version)
	}
	return nil
}

func printHelp(out io.Writer) {
	fmt.Fprint(out, `commands:
  <passage>        navigate to a passage
  :look            reprint the current passage
  :vars            show story variables
  :back [n]        rewind n steps (default 1)
  :forward [n]     move forward n steps (default 1)
  :random          draw from the deterministic stream
  :save <slot>     save to a numbered slot
  :load <slot>     load a numbered slot
  :autosave        write the autosave
  :delete <slot>   delete a numbered slot
  :saves           list stored saves
  :export <file>   export all records to a file
  :import <file>   import records from a file
  :quit            exit
`)
}

func argOrDefault(args []string, fallback int) int {
	if len(args) == 0 {
		return fallback
	}
	value, err := strconv.Atoi(args[0])
	if err != nil || value < 1 {
		return fallback
	}
	return value
}

func slotArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("expected a slot number")
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid slot %q", args[0])
	}
	return slot, nil
}
