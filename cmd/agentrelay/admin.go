package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"

	"github.com/Strob0t/agentrelay/internal/adapter/postgres"
	"github.com/Strob0t/agentrelay/internal/config"
	"github.com/Strob0t/agentrelay/internal/domain/a2a"
	"github.com/Strob0t/agentrelay/internal/service"
)

func isAdminCommand(name string) bool {
	switch name {
	case "migrate", "stats", "cleanup", "mcp", "help", "--help":
		return true
	}
	return false
}

// runAdmin dispatches the one-shot subcommands.
func runAdmin(args []string) error {
	switch args[0] {
	case "migrate":
		return runMigrate(args[1:])
	case "stats":
		return runStats(args[1:])
	case "cleanup":
		return runCleanup(args[1:])
	case "mcp":
		return runMCP(args[1:])
	default:
		printAdminHelp()
		return nil
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: agentrelay [serve flags]
       agentrelay <command> [options]

Commands:
  migrate up|down|version   Apply, roll back or show database migrations
  stats                     Print A2A totals
  cleanup                   Expire sessions and archive old tasks once
  mcp list                  List configured MCP tool servers
  mcp probe <name>          Start a tool server and list its tools
  help                      Show this help message

Output is a table on a terminal and JSON otherwise; --json forces JSON.

Examples:
  agentrelay migrate down --steps 2
  agentrelay stats --json
  agentrelay mcp probe braveSearch
`)
}

// adminOpts are the flags shared by admin commands.
type adminOpts struct {
	fs      *flag.FlagSet
	cfgPath *string
	asJSON  *bool
}

func newAdminFlags(name string) adminOpts {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	return adminOpts{
		fs:      fs,
		cfgPath: fs.String("config", config.DefaultConfigFile, "path to YAML config"),
		asJSON:  fs.Bool("json", false, "print JSON even on a terminal"),
	}
}

func loadAdminConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadFrom(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// loadAdminService opens the configured store behind an A2AService without
// event publishing.
func loadAdminService(ctx context.Context, cfgPath string) (*service.A2AService, func(), error) {
	cfg, err := loadAdminConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return service.NewA2AService(store, nil, cfg.A2A), closeStore, nil
}

func runMigrate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("migrate: expected up, down or version")
	}
	opts := newAdminFlags("migrate")
	steps := opts.fs.Int("steps", 1, "migrations to roll back (down only)")
	if err := opts.fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadAdminConfig(*opts.cfgPath)
	if err != nil {
		return err
	}
	ctx := context.Background()
	dsn := cfg.Postgres.DSN

	switch args[0] {
	case "up":
		if err := postgres.RunMigrations(ctx, dsn); err != nil {
			return fmt.Errorf("migrate up: %w", err)
		}
	case "down":
		if err := postgres.RollbackMigrations(ctx, dsn, *steps); err != nil {
			return fmt.Errorf("migrate down: %w", err)
		}
	case "version":
	default:
		return fmt.Errorf("migrate: unknown action %q", args[0])
	}

	v, err := postgres.MigrationVersion(ctx, dsn)
	if err != nil {
		return fmt.Errorf("migration version: %w", err)
	}
	fmt.Fprintf(os.Stderr, "schema version %d\n", v)
	return nil
}

func runStats(args []string) error {
	opts := newAdminFlags("stats")
	if err := opts.fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	svc, cleanup, err := loadAdminService(ctx, *opts.cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	st, err := svc.GetStats(ctx)
	if err != nil {
		return fmt.Errorf("stats: %w", err)
	}
	if !useTable(*opts.asJSON) {
		return writeJSONTo(os.Stdout, st)
	}
	return printStats(os.Stdout, st)
}

func runCleanup(args []string) error {
	opts := newAdminFlags("cleanup")
	if err := opts.fs.Parse(args); err != nil {
		return err
	}

	ctx := context.Background()
	svc, cleanup, err := loadAdminService(ctx, *opts.cfgPath)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Cleanup(ctx)
	if err != nil {
		return err
	}
	if !useTable(*opts.asJSON) {
		return writeJSONTo(os.Stdout, res)
	}
	fmt.Printf("expired %s sessions, archived %s tasks\n",
		humanize.Comma(res.ExpiredSessions), humanize.Comma(res.ArchivedTasks))
	return nil
}

func runMCP(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("mcp: expected list or probe <name>")
	}
	opts := newAdminFlags("mcp")
	if err := opts.fs.Parse(args[1:]); err != nil {
		return err
	}

	cfg, err := loadAdminConfig(*opts.cfgPath)
	if err != nil {
		return err
	}
	orch, err := service.NewMCPOrchestrator(cfg.MCP)
	if err != nil {
		return err
	}

	switch args[0] {
	case "list":
		defs := orch.Servers()
		if !useTable(*opts.asJSON) {
			return writeJSONTo(os.Stdout, defs)
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "NAME\tCOMMAND\tREQUIRED_ENV")
		for i := range defs {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%v\n", defs[i].Name, defs[i].Command, defs[i].RequiredEnv)
		}
		return w.Flush()
	case "probe":
		if opts.fs.NArg() != 1 {
			return fmt.Errorf("mcp probe: expected exactly one server name")
		}
		res, err := orch.Probe(context.Background(), opts.fs.Arg(0))
		if err != nil {
			return err
		}
		if !useTable(*opts.asJSON) {
			return writeJSONTo(os.Stdout, res)
		}
		if !res.Success {
			return fmt.Errorf("probe %s: %s", res.ServerName, res.Error)
		}
		fmt.Printf("%s ok: %s tools\n", res.ServerName, humanize.Comma(int64(len(res.Tools))))
		for _, name := range res.Tools {
			fmt.Printf("  %s\n", name)
		}
		return nil
	default:
		return fmt.Errorf("mcp: unknown action %q", args[0])
	}
}

// useTable reports whether stdout is a terminal and JSON was not forced.
func useTable(forceJSON bool) bool {
	return !forceJSON && term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec // fd fits in int
}

func writeJSONTo(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printStats(w io.Writer, st *a2a.Stats) error {
	rows := []struct {
		name  string
		value int64
	}{
		{"tasks", st.TotalTasks},
		{"active tasks", st.ActiveTasks},
		{"messages", st.TotalMessages},
		{"interactions", st.TotalInteractions},
		{"active sessions", st.ActiveSessions},
		{"expired sessions", st.ExpiredSessions},
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "METRIC\tVALUE")
	for _, row := range rows {
		_, _ = fmt.Fprintf(tw, "%s\t%s\n", row.name, humanize.Comma(row.value))
	}
	return tw.Flush()
}
