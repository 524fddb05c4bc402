package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/term"

	plmxml "github.com/agentflare-ai/go-plmxml"
	"github.com/agentflare-ai/go-plmxml/bom"
	"github.com/agentflare-ai/go-plmxml/internal/logging"
	"github.com/agentflare-ai/go-plmxml/metrics"
	"github.com/agentflare-ai/go-plmxml/source"
	"github.com/agentflare-ai/go-plmxml/store"
)

const usage = `Usage: plmxml <command> [flags]

Commands:
  export   write the BOM of a product view as CSV or Arrow
  header   print the document header
  tree     print the resolved product structure
  diag     print parse and link diagnostics
  load     store a product view in SQLite or Postgres
  imports  list stored imports
  view     browse the product structure interactively

Run "plmxml <command> -h" for the flags of a command.
`

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprint(stderr, usage)
		return 2
	}
	commands := map[string]func(context.Context, []string, io.Writer, io.Writer) error{
		"export":  runExport,
		"header":  runHeader,
		"tree":    runTree,
		"diag":    runDiag,
		"load":    runLoad,
		"imports": runImports,
		"view":    runView,
	}
	cmd, ok := commands[args[0]]
	if !ok {
		if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
			fmt.Fprint(stdout, usage)
			return 0
		}
		fmt.Fprintf(stderr, "unknown command %q\n\n%s", args[0], usage)
		return 2
	}
	if err := cmd(ctx, args[1:], stdout, stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// common holds the flags shared by every command that parses a document
type common struct {
	input     string
	logLevel  string
	logFormat string
	strict    bool
	metrics   bool

	logger   *zap.Logger
	registry *prometheus.Registry
	stderr   io.Writer
}

func addCommon(fs *flag.FlagSet) *common {
	c := &common{}
	fs.StringVar(&c.input, "i", "", "input PLMXML document (path or s3://bucket/key)")
	fs.StringVar(&c.logLevel, "log-level", "", "log level (debug, info, warn, error); default $"+logging.EnvLevel+" or warn")
	fs.StringVar(&c.logFormat, "log-format", "console", "log format (console, json)")
	fs.BoolVar(&c.strict, "strict", false, "fail on duplicate element ids")
	fs.BoolVar(&c.metrics, "metrics", false, "print parse metrics to stderr when done")
	return c
}

func (c *common) setup(stderr io.Writer) error {
	if c.input == "" {
		return fmt.Errorf("input file required (-i)")
	}
	logger, err := logging.New(logging.Config{Level: c.logLevel, Format: c.logFormat})
	if err != nil {
		return err
	}
	c.logger = logger
	c.registry = prometheus.NewRegistry()
	c.stderr = stderr
	return nil
}

func (c *common) options() []plmxml.Option {
	opts := []plmxml.Option{
		plmxml.WithLogger(c.logger),
		plmxml.WithRecorder(metrics.NewCollector(c.registry)),
	}
	if c.strict {
		opts = append(opts, plmxml.WithDuplicatePolicy(plmxml.DuplicateReject))
	}
	return opts
}

// parse opens and parses the input
func (c *common) parse(ctx context.Context) (*plmxml.Result, error) {
	res, err := source.NewOpener(source.ConfigFromEnv()).Parse(ctx, c.input, c.options()...)
	if err != nil {
		return nil, fmt.Errorf("could not parse PLMXML file %s: %w", c.input, err)
	}
	return res, nil
}

func (c *common) finish() {
	if c.logger != nil {
		_ = c.logger.Sync()
	}
	if c.metrics && c.registry != nil {
		if err := metrics.WriteText(c.stderr, c.registry); err != nil {
			fmt.Fprintf(c.stderr, "metrics: %v\n", err)
		}
	}
}

func runExport(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := addCommon(fs)
	output := fs.String("o", "-", "output file, - for stdout")
	format := fs.String("format", "csv", "output format (csv, arrow)")
	view := fs.Int("view", 0, "product view index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != "csv" && *format != "arrow" {
		return fmt.Errorf("unknown format %q", *format)
	}
	if err := c.setup(stderr); err != nil {
		return err
	}
	defer c.finish()

	res, err := c.parse(ctx)
	if err != nil {
		return err
	}

	var rows []bom.Row
	if len(res.Views) == 0 {
		fmt.Fprintln(stderr, "No ProductView (BOM) data found in the PLMXML file.")
	} else {
		if *view < 0 || *view >= len(res.Views) {
			return fmt.Errorf("view %d out of range (%d views)", *view, len(res.Views))
		}
		rows = bom.Rows(res, *view)
	}

	w := stdout
	if *output != "-" {
		f, err := os.Create(*output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer f.Close()
		w = f
	}
	switch *format {
	case "arrow":
		err = bom.WriteArrow(w, rows)
	default:
		err = bom.WriteCSV(w, rows)
	}
	if err != nil {
		return err
	}
	if *output != "-" {
		fmt.Fprintf(stderr, "Exported %d rows to '%s'.\n", len(rows), *output)
	}
	return nil
}

func runHeader(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("header", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := addCommon(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.setup(stderr); err != nil {
		return err
	}
	defer c.finish()

	var h plmxml.Header
	if source.IsS3(c.input) {
		res, err := c.parse(ctx)
		if err != nil {
			return err
		}
		h, _ = res.Header()
	} else {
		var err error
		if h, err = plmxml.ReadHeader(c.input, c.options()...); err != nil {
			return err
		}
	}
	fmt.Fprintf(stdout, "Schema Version: %s\nAuthor: %s\nDate: %s\nTime: %s\n", h.SchemaVersion, h.Author, h.Date, h.Time)
	return nil
}

func runTree(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("tree", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := addCommon(fs)
	plain := fs.Bool("plain", false, "disable styling")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.setup(stderr); err != nil {
		return err
	}
	defer c.finish()

	res, err := c.parse(ctx)
	if err != nil {
		return err
	}
	styled := !*plain && isTerminal(stdout)
	fmt.Fprint(stdout, renderTree(res, styled))
	return nil
}

func runDiag(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("diag", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := addCommon(fs)
	all := fs.Bool("all", false, "include informational notes")
	contextLines := fs.Int("context", 2, "source lines shown before each diagnostic")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.setup(stderr); err != nil {
		return err
	}
	defer c.finish()

	res, err := c.parse(ctx)
	if err != nil {
		return err
	}

	var text string
	if !source.IsS3(c.input) {
		if data, err := os.ReadFile(c.input); err == nil {
			text = string(data)
		}
	}

	diags := res.Warnings()
	if *all {
		diags = res.Diagnostics
	}
	if len(diags) == 0 {
		fmt.Fprintf(stdout, "%s: no problems found\n", c.input)
		return nil
	}
	formatter := &plmxml.ErrorFormatter{Color: isTerminal(stdout), ContextLines: *contextLines}
	fmt.Fprintf(stdout, "Found %d issues in %s:\n\n", len(diags), c.input)
	for _, d := range diags {
		fmt.Fprintln(stdout, formatter.Format(d, text))
	}
	return nil
}

func runLoad(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("load", flag.ContinueOnError)
	fs.SetOutput(stderr)
	c := addCommon(fs)
	driver := fs.String("db-driver", os.Getenv("PLMXML_DB_DRIVER"), "database driver (sqlite, pgx); default $PLMXML_DB_DRIVER or sqlite")
	dsn := fs.String("db-dsn", os.Getenv("PLMXML_DB_DSN"), "database DSN; default $PLMXML_DB_DSN")
	view := fs.Int("view", 0, "product view index")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.setup(stderr); err != nil {
		return err
	}
	defer c.finish()

	res, err := c.parse(ctx)
	if err != nil {
		return err
	}
	st, err := store.Open(ctx, *driver, *dsn)
	if err != nil {
		return err
	}
	defer st.Close()

	imp, err := st.Save(ctx, c.input, res, *view)
	if err != nil {
		return err
	}
	c.logger.Info("import stored", zap.String("id", imp.ID), zap.Int("rows", imp.Rows))
	fmt.Fprintf(stdout, "%s\t%d rows\t%d warnings\n", imp.ID, imp.Rows, imp.Warnings)
	return nil
}

func runImports(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("imports", flag.ContinueOnError)
	fs.SetOutput(stderr)
	driver := fs.String("db-driver", os.Getenv("PLMXML_DB_DRIVER"), "database driver (sqlite, pgx)")
	dsn := fs.String("db-dsn", os.Getenv("PLMXML_DB_DSN"), "database DSN")
	rowsOf := fs.String("rows", "", "print the BOM rows of this import id as CSV")
	if err := fs.Parse(args); err != nil {
		return err
	}

	st, err := store.Open(ctx, *driver, *dsn)
	if err != nil {
		return err
	}
	defer st.Close()

	if *rowsOf != "" {
		rows, err := st.LoadRows(ctx, *rowsOf)
		if err != nil {
			return err
		}
		return bom.WriteCSV(stdout, rows)
	}

	imports, err := st.Imports(ctx)
	if err != nil {
		return err
	}
	for _, imp := range imports {
		fmt.Fprintf(stdout, "%s\t%s\t%s\tview=%s\trows=%d\twarnings=%d\n",
			imp.ID, imp.ImportedAt.Format("2006-01-02T15:04:05Z07:00"), imp.Location, imp.ViewID, imp.Rows, imp.Warnings)
	}
	return nil
}

// isTerminal reports whether w is a terminal
func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd())) && !strings.EqualFold(os.Getenv("TERM"), "dumb")
}
