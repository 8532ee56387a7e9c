package main

import (
	"context"
	"errors"
	"fmt"
	"go/types"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"syscall"

	"github.com/spf13/cobra"
)

// errFindings marks a run that completed but found error-severity problems.
var errFindings = errors.New("error findings reported")

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		if errors.Is(err, errFindings) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// cliFlags holds the values of flags shared across commands. Flags only
// override the configuration file when set explicitly.
type cliFlags struct {
	configFile string
	verbose    bool
	logJSON    bool

	driver         string
	dsn            string
	precise        bool
	invoke         bool
	sqliteOut      string
	jsonOut        string
	failOnFindings bool
	stubOut        string
	stubPackage    string
}

// run is the real entry point. Using a separate function ensures all defers
// execute even on error paths, unlike os.Exit which skips deferred calls.
func run() error {
	// VTA over large programs is memory hungry.
	debug.SetMemoryLimit(8 * 1024 * 1024 * 1024) // 8 GiB

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	f := &cliFlags{}

	root := &cobra.Command{
		Use:   "sprocheck",
		Short: "Check HTTP endpoints against the stored procedures they call",
		Long: `sprocheck loads a Go service, finds its controller endpoints and the
collaborator calls behind them, and verifies each bound stored procedure
against the live database catalog.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&f.configFile, "config", "c", "", "configuration file (default "+DefaultConfigFile+" if present)")
	root.PersistentFlags().BoolVarP(&f.verbose, "verbose", "v", false, "print detailed progress")
	root.PersistentFlags().BoolVar(&f.logJSON, "log-json", false, "log JSON lines instead of console output")

	checkCmd := &cobra.Command{
		Use:   "check [dir]",
		Short: "Correlate endpoints with procedure contracts",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd, args, f)
		},
	}
	addDatabaseFlags(checkCmd, f)
	checkCmd.Flags().BoolVar(&f.precise, "precise", false, "widen the call scan with a VTA call graph")
	checkCmd.Flags().BoolVar(&f.invoke, "invoke", false, "invoke every known procedure with synthetic arguments")
	checkCmd.Flags().StringVar(&f.sqliteOut, "sqlite", "", "append the report to this SQLite database")
	checkCmd.Flags().StringVar(&f.jsonOut, "json", "", "write the report as JSON (- for stdout)")
	checkCmd.Flags().BoolVar(&f.failOnFindings, "fail-on-findings", false, "exit with status 2 when any error finding is reported")

	endpointsCmd := &cobra.Command{
		Use:   "endpoints [dir]",
		Short: "List extracted endpoints and their collaborator calls as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEndpoints(cmd, args, f)
		},
	}
	endpointsCmd.Flags().BoolVar(&f.precise, "precise", false, "widen the call scan with a VTA call graph")

	contractCmd := &cobra.Command{
		Use:   "contract <procedure>",
		Short: "Print the parameter contract of one stored procedure",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runContract(cmd, args, f)
		},
	}
	addDatabaseFlags(contractCmd, f)

	stubCmd := &cobra.Command{
		Use:   "stub <package> <interface>",
		Short: "Generate a stub implementation of a collaborator interface",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStub(cmd, args, f)
		},
	}
	stubCmd.Flags().StringVarP(&f.stubOut, "output", "o", "", "output file (default stdout)")
	stubCmd.Flags().StringVar(&f.stubPackage, "package", "", "package clause of the generated file")

	root.AddCommand(checkCmd, endpointsCmd, contractCmd, stubCmd)
	return root
}

func addDatabaseFlags(cmd *cobra.Command, f *cliFlags) {
	cmd.Flags().StringVar(&f.driver, "driver", "", "database driver (sqlserver, sqlite)")
	cmd.Flags().StringVar(&f.dsn, "dsn", "", "catalog database connection string")
}

// loadConfig reads the configuration file and applies explicitly set flags
// and the optional directory argument over it.
func loadConfig(cmd *cobra.Command, args []string, f *cliFlags) (*Config, error) {
	cfg, err := LoadConfig(f.configFile)
	if err != nil {
		return nil, err
	}
	if len(args) == 1 && cmd.Name() != "contract" {
		cfg.Dir = args[0]
	}

	flags := cmd.Flags()
	if flags.Changed("driver") {
		cfg.Database.Driver = f.driver
	}
	if flags.Changed("dsn") {
		cfg.Database.DSN = f.dsn
	}
	if flags.Changed("precise") {
		cfg.Precise = f.precise
	}
	if flags.Changed("invoke") {
		cfg.Invoke.Enabled = f.invoke
	}
	if flags.Changed("sqlite") {
		cfg.Report.SQLite = f.sqliteOut
	}
	if flags.Changed("json") {
		cfg.Report.JSON = f.jsonOut
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newLogger(f *cliFlags) *Progress {
	return NewProgress(ProgressConfig{Verbose: f.verbose, JSON: f.logJSON})
}

func runCheck(cmd *cobra.Command, args []string, f *cliFlags) error {
	cfg, err := loadConfig(cmd, args, f)
	if err != nil {
		return err
	}
	log := newLogger(f)

	db, err := OpenDatabase(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	r, err := NewChecker(cfg, db, log).Run(cmd.Context())
	if err != nil {
		return err
	}

	if cfg.Report.SQLite != "" {
		if err := WriteReportDB(cfg.Report.SQLite, r, log); err != nil {
			return err
		}
	}
	if cfg.Report.JSON != "" {
		if err := WriteReportJSON(cfg.Report.JSON, r, cmd.OutOrStdout()); err != nil {
			return err
		}
	}

	s := r.Summary
	log.Log("Done. %d endpoints (%d bound), %d procedures, %d errors, %d warnings.",
		s.Endpoints, s.BoundEndpoints, s.Procedures, s.Errors, s.Warnings)
	if f.failOnFindings && s.Failed() {
		return fmt.Errorf("%d errors: %w", s.Errors, errFindings)
	}
	return nil
}

// endpointCalls is one line of the endpoints command output.
type endpointCalls struct {
	*Endpoint
	Calls []string `json:"calls"`
}

func runEndpoints(cmd *cobra.Command, args []string, f *cliFlags) error {
	cfg, err := loadConfig(cmd, args, f)
	if err != nil {
		return err
	}
	log := newLogger(f)

	prog, err := loadConfiguredProgram(cfg, nil, log)
	if err != nil {
		return err
	}
	eps, calls := Analyze(prog, cfg.ExtractOptions(), cfg.Precise, log)
	out := make([]endpointCalls, len(eps))
	for i, ep := range eps {
		out[i] = endpointCalls{Endpoint: ep, Calls: calls[i]}
	}
	return encodeJSON(cmd.OutOrStdout(), out)
}

func runContract(cmd *cobra.Command, args []string, f *cliFlags) error {
	cfg, err := loadConfig(cmd, args, f)
	if err != nil {
		return err
	}
	log := newLogger(f)

	db, err := OpenDatabase(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return err
	}
	defer db.Close()

	name := ParseQualifiedName(args[0], cfg.DefaultSchema)
	c, err := NewIntrospector(db, log).FetchContract(cmd.Context(), name.Schema, name.Name)
	if err != nil {
		return err
	}
	return encodeJSON(cmd.OutOrStdout(), c)
}

func runStub(cmd *cobra.Command, args []string, f *cliFlags) error {
	cfg, err := loadConfig(cmd, nil, f)
	if err != nil {
		return err
	}
	log := newLogger(f)
	pkgPath, ifaceName := args[0], args[1]

	prog, err := loadConfiguredProgram(cfg, []string{pkgPath}, log)
	if err != nil {
		return err
	}
	named, err := lookupInterface(prog, pkgPath, ifaceName)
	if err != nil {
		return err
	}

	// Without --package the stub lands next to the interface.
	src, err := GenerateStub(named, StubOptions{Package: f.stubPackage})
	if err != nil {
		return err
	}

	if f.stubOut == "" {
		_, err = cmd.OutOrStdout().Write(src.Source)
		return err
	}
	if err := os.MkdirAll(filepath.Dir(f.stubOut), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(f.stubOut, src.Source, 0o644); err != nil {
		return fmt.Errorf("write stub: %w", err)
	}
	log.Log("Wrote %s (%s)", f.stubOut, src.TypeName)
	return nil
}

func loadConfiguredProgram(cfg *Config, patterns []string, log *Progress) (*Program, error) {
	ms, err := cfg.ModuleSet()
	if err != nil {
		return nil, err
	}
	if patterns == nil {
		patterns = cfg.Patterns
	}
	return LoadProgram(ms, LoadOptions{Patterns: patterns, SkipTests: cfg.SkipTests}, log)
}

// lookupInterface finds the named interface type ifaceName in package pkgPath.
func lookupInterface(prog *Program, pkgPath, ifaceName string) (*types.Named, error) {
	for _, pkg := range prog.Packages {
		if pkg.Path != pkgPath || pkg.Types == nil {
			continue
		}
		obj, ok := pkg.Types.Scope().Lookup(ifaceName).(*types.TypeName)
		if !ok {
			return nil, fmt.Errorf("%s.%s: no such type", pkgPath, ifaceName)
		}
		named, ok := obj.Type().(*types.Named)
		if !ok || !types.IsInterface(named) {
			return nil, fmt.Errorf("%s.%s is not an interface", pkgPath, ifaceName)
		}
		return named, nil
	}
	return nil, fmt.Errorf("package %s not loaded", pkgPath)
}
