// calcflowc evaluates formula sheets from the command line: one-shot
// evaluation, static checking, and a watch mode that re-evaluates on every
// change to the sheet file.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/fsnotify/fsnotify"

	"github.com/calcflow/calcflow-go/ast"
	"github.com/calcflow/calcflow-go/document"
	"github.com/calcflow/calcflow-go/engine"
	"github.com/calcflow/calcflow-go/registry"
)

// Command represents a sub-command of calcflowc
type Command struct {
	Name        string
	Description string
	FlagSet     *flag.FlagSet
	Run         func() error
}

var (
	verbose  = flag.Bool("verbose", false, "Show detailed output")
	commands = make(map[string]*Command)
)

func main() {
	defineCommands()

	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "Usage: calcflowc <command> [options]")
		fmt.Fprintln(os.Stderr, "Available commands:")
		for name, cmd := range commands {
			fmt.Fprintf(os.Stderr, "  %s\t%s\n", name, cmd.Description)
		}
		flag.PrintDefaults()
		os.Exit(1)
	}

	cmdName := args[0]
	cmd, ok := commands[cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmdName)
		os.Exit(1)
	}

	if err := cmd.FlagSet.Parse(args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		os.Exit(1)
	}
	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func defineCommands() {
	evalFlags := flag.NewFlagSet("eval", flag.ExitOnError)
	evalSheet := evalFlags.String("sheet", "", "Path to the sheet file")
	evalSet := evalFlags.String("set", "", "Input overrides, comma-separated id=value pairs")
	commands["eval"] = &Command{
		Name:        "eval",
		Description: "Evaluate a sheet once and print computed values",
		FlagSet:     evalFlags,
		Run:         func() error { return runEval(*evalSheet, *evalSet) },
	}

	checkFlags := flag.NewFlagSet("check", flag.ExitOnError)
	checkSheet := checkFlags.String("sheet", "", "Path to the sheet file")
	commands["check"] = &Command{
		Name:        "check",
		Description: "Parse a sheet and report undeclared references",
		FlagSet:     checkFlags,
		Run:         func() error { return runCheck(*checkSheet) },
	}

	watchFlags := flag.NewFlagSet("watch", flag.ExitOnError)
	watchSheet := watchFlags.String("sheet", "", "Path to the sheet file")
	commands["watch"] = &Command{
		Name:        "watch",
		Description: "Re-evaluate the sheet whenever the file changes",
		FlagSet:     watchFlags,
		Run:         func() error { return runWatch(*watchSheet) },
	}
}

func loadEngine(sheetPath string) (*engine.Engine, *document.Sheet, error) {
	if sheetPath == "" {
		return nil, nil, fmt.Errorf("-sheet is required")
	}
	sheet, err := document.Load(sheetPath)
	if err != nil {
		return nil, nil, err
	}
	eng := engine.New(registry.New())
	if err := sheet.Apply(eng); err != nil {
		return nil, nil, err
	}
	return eng, sheet, nil
}

func runEval(sheetPath, overrides string) error {
	eng, _, err := loadEngine(sheetPath)
	if err != nil {
		return err
	}
	if err := applyOverrides(eng.Registry(), overrides); err != nil {
		return err
	}
	return printComputed(eng.Registry())
}

func runCheck(sheetPath string) error {
	if sheetPath == "" {
		return fmt.Errorf("-sheet is required")
	}
	sheet, err := document.Load(sheetPath)
	if err != nil {
		return err
	}

	declared := make(map[string]bool, len(sheet.Variables))
	for _, v := range sheet.Variables {
		declared[v.ID] = true
	}

	problems := 0
	for _, line := range sheet.Equations {
		eq, err := ast.Parse(line)
		if err != nil {
			fmt.Printf("equation %q: %v\n", line, err)
			problems++
			continue
		}
		for _, side := range []string{eq.Left, eq.Right} {
			for _, id := range ast.Identifiers(side) {
				if !declared[id] {
					fmt.Printf("equation %q references undeclared variable %q\n", line, id)
					problems++
				}
			}
		}
		if *verbose {
			fmt.Printf("ok: %s\n", line)
		}
	}
	if problems > 0 {
		return fmt.Errorf("%d problem(s) found", problems)
	}
	fmt.Printf("%d variables, %d equations, no problems\n", len(sheet.Variables), len(sheet.Equations))
	return nil
}

func runWatch(sheetPath string) error {
	eng, _, err := loadEngine(sheetPath)
	if err != nil {
		return err
	}
	eng.Registry().OnChange(func(changed []string) {
		if *verbose {
			log.Printf("changed: %s", strings.Join(changed, ", "))
		}
	})
	if err := printComputed(eng.Registry()); err != nil {
		return err
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(sheetPath); err != nil {
		return fmt.Errorf("watching %s: %w", sheetPath, err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	log.Printf("watching %s", sheetPath)

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Write != fsnotify.Write {
				continue
			}
			fresh, _, err := loadEngine(sheetPath)
			if err != nil {
				log.Printf("reload failed: %v", err)
				continue
			}
			eng = fresh
			if err := printComputed(eng.Registry()); err != nil {
				log.Printf("print failed: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("watch error: %v", err)
		case <-sigCh:
			return nil
		}
	}
}

// applyOverrides applies comma-separated id=value pairs as input writes,
// each triggering a recompute.
func applyOverrides(reg *registry.Registry, overrides string) error {
	if overrides == "" {
		return nil
	}
	for _, pair := range strings.Split(overrides, ",") {
		id, raw, found := strings.Cut(strings.TrimSpace(pair), "=")
		if !found {
			return fmt.Errorf("invalid override %q, want id=value", pair)
		}
		var value interface{}
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			value = n
		} else {
			value = raw
		}
		if !reg.SetValue(id, value) {
			return fmt.Errorf("setting %q failed", id)
		}
	}
	return nil
}

func printComputed(reg *registry.Registry) error {
	out := make(map[string]interface{})
	ids := reg.ByRole(registry.RoleComputed)
	sort.Strings(ids)
	for _, id := range ids {
		v, ok := reg.Get(id)
		if !ok {
			continue
		}
		if v.Errored {
			out[id] = "error"
			continue
		}
		out[id] = v.Value
	}
	encoded, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
