package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"

	"github.com/google/subcommands"

	"budget/internal/period"
	"budget/internal/settings"
	"budget/internal/storage"
)

// periodFlags are shared by every command.
type periodFlags struct {
	date     string
	startDay int
	dbPath   string
}

func (p *periodFlags) register(f *flag.FlagSet) {
	f.StringVar(&p.date, "date", "", "Reference date as YYYY-MM-DD. Defaults to today.")
	f.IntVar(&p.startDay, "start-day", 0, "Month start day (1-31). When unset the value stored in -db is used.")
	f.StringVar(&p.dbPath, "db", os.Getenv("SQLITE_DB_PATH"), "SQLite database to read the month start day from.")
}

func (p *periodFlags) reference() (period.Date, error) {
	if p.date == "" {
		return period.Today(), nil
	}
	return period.ParseDate(p.date)
}

// resolveStartDay prefers -start-day, then the stored setting, then the default.
func (p *periodFlags) resolveStartDay(ctx context.Context) (period.StartDay, string, error) {
	if p.startDay != 0 {
		s := period.StartDay(p.startDay)
		if err := s.Validate(); err != nil {
			return 0, "", err
		}
		return s, "flag", nil
	}
	if p.dbPath == "" {
		return period.DefaultStartDay, "default", nil
	}

	repo, err := storage.NewSQLiteRepository(p.dbPath)
	if err != nil {
		return 0, "", fmt.Errorf("open %s: %w", p.dbPath, err)
	}
	defer repo.Close()

	svc := settings.NewService(repo, settings.Options{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return svc.MonthStartDay(ctx), p.dbPath, nil
}

type showCmd struct {
	periodFlags
}

func (*showCmd) Name() string     { return "show" }
func (*showCmd) Synopsis() string { return "prints the period containing a date" }
func (*showCmd) Usage() string {
	return `show [-date YYYY-MM-DD] [-start-day N] [-db path]

Prints the budget period containing the reference date together with the
periods before and after it.
`
}

func (c *showCmd) SetFlags(f *flag.FlagSet) { c.register(f) }

func (c *showCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	ref, err := c.reference()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	day, source, err := c.resolveStartDay(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	current := period.Compute(ref, day)
	fmt.Printf("Month start day: %d (%s)\n", day, source)
	fmt.Printf("Reference date:  %s\n\n", ref)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "\tSTART\tEND\tDAYS\tLABEL")
	for _, row := range []struct {
		name string
		r    period.Range
	}{
		{"previous", current.Previous(day)},
		{"current", current},
		{"next", current.Next(day)},
	} {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n", row.name, row.r.Start, row.r.End, row.r.Days(), row.r.Label())
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

type listCmd struct {
	periodFlags
	count int
}

func (*listCmd) Name() string     { return "list" }
func (*listCmd) Synopsis() string { return "prints consecutive periods starting at a date" }
func (*listCmd) Usage() string {
	return `list [-date YYYY-MM-DD] [-start-day N] [-db path] [-count N]

Prints -count consecutive budget periods, the first being the one that
contains the reference date.
`
}

func (c *listCmd) SetFlags(f *flag.FlagSet) {
	c.register(f)
	f.IntVar(&c.count, "count", 12, "Number of periods to print.")
}

func (c *listCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.count < 1 {
		fmt.Fprintln(os.Stderr, "Error: -count must be positive.")
		return subcommands.ExitUsageError
	}
	ref, err := c.reference()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitUsageError
	}
	day, _, err := c.resolveStartDay(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "START\tEND\tDAYS")
	r := period.Compute(ref, day)
	for i := 0; i < c.count; i++ {
		fmt.Fprintf(w, "%s\t%s\t%d\n", r.Start, r.End, r.Days())
		r = r.Next(day)
	}
	if err := w.Flush(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
