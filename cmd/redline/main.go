// Command redline compares two DOCX documents and produces a tracked-changes
// document, as if the revision had been made with change tracking enabled.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/alecthomas/kong"

	"github.com/openagreements/redline/core/compare"
	"github.com/openagreements/redline/core/docx"
	"github.com/openagreements/redline/internal/api"
	"github.com/openagreements/redline/internal/archive"
	"github.com/openagreements/redline/internal/journal"
	"github.com/openagreements/redline/internal/logging"
)

const version = "0.4.0"

// CLI defines the command-line interface for redline.
var CLI struct {
	LogLevel  string `help:"Log level (debug, info, warn, error)" default:"info"`
	LogFormat string `help:"Log format (json, text)" default:"text"`

	Compare CompareCmd `cmd:"" help:"Compare two documents and write a tracked-changes result"`
	History HistoryCmd `cmd:"" help:"List journaled comparison runs"`
	Serve   ServeCmd   `cmd:"" help:"Start the REST API server"`
	Version VersionCmd `cmd:"" help:"Print version information"`
}

// CompareCmd compares two documents.
type CompareCmd struct {
	Original string `arg:"" help:"Path to the original document" type:"existingfile"`
	Revised  string `arg:"" help:"Path to the revised document" type:"existingfile"`
	Output   string `short:"o" help:"Output path" default:"redline.docx" type:"path"`

	Author           string  `help:"Revision author recorded on generated markup" default:"redline"`
	Mode             string  `help:"Reconstruction mode (rebuild, inplace)" default:"rebuild" enum:"rebuild,inplace"`
	Engine           string  `help:"Comparison engine (atom, paragraph)" default:"atom" enum:"atom,paragraph"`
	IgnoreFormatting bool    `help:"Skip format-change detection"`
	NoMergeRuns      bool    `help:"Do not merge identically-formatted adjacent runs before comparing"`
	MoveMinWords     int     `help:"Minimum words for move detection" default:"5"`
	MoveSimilarity   float64 `help:"Jaccard similarity threshold for moves" default:"0.8"`
	CheckRebuild     bool    `help:"Run round-trip safety checks on rebuild output"`

	Archive string `help:"Write a tar.xz audit bundle of inputs, output, and report" type:"path"`
	Journal string `help:"SQLite journal database to record the run in" type:"path"`
	Stats   bool   `help:"Print a JSON stats report to stdout"`
}

func (c *CompareCmd) Run() error {
	original, err := docx.Open(c.Original)
	if err != nil {
		return err
	}
	revised, err := docx.Open(c.Revised)
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := compare.Compare(original, revised, compare.Options{
		Author:            c.Author,
		Mode:              compare.Mode(c.Mode),
		Engine:            compare.Engine(c.Engine),
		IgnoreFormatting:  c.IgnoreFormatting,
		MergeAdjacentRuns: !c.NoMergeRuns,
		MoveMinWords:      c.MoveMinWords,
		MoveSimilarity:    c.MoveSimilarity,
		CheckRebuild:      c.CheckRebuild,
	})
	if err != nil {
		return err
	}
	elapsed := time.Since(start)

	if err := os.WriteFile(c.Output, res.Output, 0644); err != nil {
		return fmt.Errorf("write output: %w", err)
	}

	report := buildReport(res, elapsed)
	if c.Stats {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report); err != nil {
			return err
		}
	} else {
		fmt.Printf("%s: %d insertions, %d deletions, %d moves, %d format changes (%s mode)\n",
			c.Output, res.Stats.Insertions, res.Stats.Deletions,
			res.Stats.Moves, res.Stats.FormatChanges, res.ModeUsed)
		if res.FallbackReason != "" {
			fmt.Printf("note: fell back to %s mode (%s)\n", res.ModeUsed, res.FallbackReason)
		}
	}

	if c.Archive != "" {
		if err := writeBundle(c.Archive, original, revised, res, report); err != nil {
			return fmt.Errorf("write audit bundle: %w", err)
		}
	}
	if c.Journal != "" {
		if err := recordRun(c, res, elapsed); err != nil {
			return fmt.Errorf("journal run: %w", err)
		}
	}
	return nil
}

// report is the JSON shape shared by --stats output and audit bundles.
type report struct {
	Stats          compare.Stats                `json:"stats"`
	Engine         compare.Engine               `json:"engine"`
	ModeRequested  compare.Mode                 `json:"mode_requested"`
	ModeUsed       compare.Mode                 `json:"mode_used"`
	FallbackReason string                       `json:"fallback_reason,omitempty"`
	Diagnostics    []compare.AttemptDiagnostics `json:"diagnostics,omitempty"`
	DurationMS     int64                        `json:"duration_ms"`
	Version        string                       `json:"version"`
}

func buildReport(res *compare.Result, elapsed time.Duration) report {
	return report{
		Stats:          res.Stats,
		Engine:         res.Engine,
		ModeRequested:  res.ModeRequested,
		ModeUsed:       res.ModeUsed,
		FallbackReason: res.FallbackReason,
		Diagnostics:    res.Diagnostics,
		DurationMS:     elapsed.Milliseconds(),
		Version:        version,
	}
}

func writeBundle(path string, original, revised *docx.Document, res *compare.Result, rep report) error {
	origBytes, err := os.ReadFile(original.Path)
	if err != nil {
		return err
	}
	revBytes, err := os.ReadFile(revised.Path)
	if err != nil {
		return err
	}
	repBytes, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return err
	}
	return archive.WriteBundle(path, []archive.Entry{
		{Name: archive.EntryOriginal, Data: origBytes},
		{Name: archive.EntryRevised, Data: revBytes},
		{Name: archive.EntryResult, Data: res.Output},
		{Name: archive.EntryReport, Data: repBytes},
	})
}

func recordRun(c *CompareCmd, res *compare.Result, elapsed time.Duration) error {
	j, err := journal.Open(c.Journal)
	if err != nil {
		return err
	}
	defer j.Close()
	return j.Record(context.Background(), &journal.Run{
		OriginalPath:   c.Original,
		RevisedPath:    c.Revised,
		Engine:         string(res.Engine),
		ModeRequested:  string(res.ModeRequested),
		ModeUsed:       string(res.ModeUsed),
		FallbackReason: res.FallbackReason,
		Insertions:     res.Stats.Insertions,
		Deletions:      res.Stats.Deletions,
		Moves:          res.Stats.Moves,
		FormatChanges:  res.Stats.FormatChanges,
		DurationMS:     elapsed.Milliseconds(),
	})
}

// HistoryCmd lists journaled runs.
type HistoryCmd struct {
	Journal string `help:"SQLite journal database" default:"redline.db" type:"path"`
	Limit   int    `help:"Maximum runs to list" default:"20"`
	JSON    bool   `help:"Print runs as JSON"`
}

func (c *HistoryCmd) Run() error {
	j, err := journal.Open(c.Journal)
	if err != nil {
		return err
	}
	defer j.Close()

	runs, err := j.History(context.Background(), c.Limit)
	if err != nil {
		return err
	}
	if c.JSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(runs)
	}
	for _, r := range runs {
		fmt.Printf("%s  %s  %s -> %s  +%d -%d ~%d moves=%d  %s\n",
			r.CreatedAt.Format(time.RFC3339), r.ID[:8],
			r.OriginalPath, r.RevisedPath,
			r.Insertions, r.Deletions, r.FormatChanges, r.Moves, r.ModeUsed)
	}
	return nil
}

// ServeCmd starts the REST API server.
type ServeCmd struct {
	Port    int    `help:"HTTP server port" default:"8080"`
	Journal string `help:"SQLite journal database (empty disables journaling)" type:"path"`
}

func (c *ServeCmd) Run() error {
	return api.Start(api.Config{
		Port:        c.Port,
		JournalPath: c.Journal,
	})
}

// VersionCmd prints version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("redline version %s\n", version)
	return nil
}

func main() {
	ctx := kong.Parse(&CLI,
		kong.Name("redline"),
		kong.Description("redline - DOCX comparison with tracked-changes output"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
	)
	format := logging.FormatText
	if CLI.LogFormat == "json" {
		format = logging.FormatJSON
	}
	logging.InitLogger(logging.ParseLevel(CLI.LogLevel), format)

	err := ctx.Run(ctx)
	ctx.FatalIfErrorf(err)
}
