// Command verifier walks the transaction hash chain and reports every
// integrity violation.
//
// Exit status: 0 when the chain is intact, 1 when violations were found,
// 2 when the verification could not run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/amirasaad/topupledger/infra"
	"github.com/amirasaad/topupledger/infra/repository"
	"github.com/amirasaad/topupledger/pkg/config"
	"github.com/amirasaad/topupledger/pkg/hashchain"
	"github.com/fatih/color"
	"golang.org/x/term"
)

const (
	exitOK          = 0
	exitViolations  = 1
	exitOperational = 2
)

func main() {
	envFile := flag.String("env", ".env", "environment file")
	asJSON := flag.Bool("json", false, "print the report as JSON")
	flag.Parse()

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		color.NoColor = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*envFile)
	if err != nil {
		fail(os.Stderr, fmt.Errorf("failed to load configuration: %w", err))
		os.Exit(exitOperational)
	}
	db, err := infra.NewDBConnection(cfg.DB, cfg.Env)
	if err != nil {
		fail(os.Stderr, fmt.Errorf("failed to connect to database: %w", err))
		os.Exit(exitOperational)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close() //nolint:errcheck
	}

	code := run(ctx, repository.NewChainSnapshot(db), os.Stdout, *asJSON)
	stop()
	os.Exit(code)
}

// run verifies src, prints the report to out and returns the exit status.
func run(ctx context.Context, src hashchain.Source, out io.Writer, asJSON bool) int {
	report, err := hashchain.Verify(ctx, src)
	if err != nil {
		fail(out, err)
		return exitOperational
	}
	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			fail(out, err)
			return exitOperational
		}
	} else {
		printReport(out, report)
	}
	if !report.OK() {
		return exitViolations
	}
	return exitOK
}

func printReport(out io.Writer, r *hashchain.Report) {
	bold := color.New(color.Bold)
	_, _ = bold.Fprintf(out, "Checked %d transaction(s)\n", r.Checked)
	if r.Checked > 0 {
		_, _ = fmt.Fprintf(out, "Head: seq %d %s\n", r.HeadSeq, r.HeadHash)
	}
	if r.OK() {
		_, _ = color.New(color.FgGreen, color.Bold).Fprintln(out, "✅ Chain intact")
		return
	}
	kind := color.New(color.FgYellow)
	for _, v := range r.Violations {
		_, _ = kind.Fprintf(out, "  %-16s", v.Kind)
		_, _ = fmt.Fprintf(out, " seq %d  %s\n", v.ChainSeq, v.TransactionID)
		_, _ = fmt.Fprintf(out, "    expected %q\n    actual   %q\n", v.Expected, v.Actual)
	}
	_, _ = color.New(color.FgRed, color.Bold).Fprintf(out, "❌ %d violation(s) found\n", len(r.Violations))
}

func fail(out io.Writer, err error) {
	_, _ = color.New(color.FgRed).Fprintf(out, "verification failed: %v\n", err)
}
