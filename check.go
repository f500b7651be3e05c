package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/bsaid97/go-geojson-cleaner/events"
	"github.com/bsaid97/go-geojson-cleaner/handlers"
	"github.com/bsaid97/go-geojson-cleaner/history"
	"github.com/bsaid97/go-geojson-cleaner/utils"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/tj/go-spin"
)

var (
	checkZip     string
	checkPublish bool
	checkTrigger string
	checkJSON    bool
)

var checkCmd = &cobra.Command{
	Use:   "check <file>",
	Short: "Validate, repair and deduplicate a GeoJSON file",
	Long: `Run the cleaning pipeline over a GeoJSON FeatureCollection and print a summary.

Without --publish the summary event is only printed, never sent.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var trigger handlers.RepairTrigger
		if checkTrigger != "" {
			parsed, err := handlers.ParseRepairTrigger(checkTrigger)
			if err != nil {
				return err
			}
			trigger = parsed
		}

		opts := appOptions{Publish: true, Trigger: trigger, History: history.NewMemoryLog()}
		recorder := &events.Recorder{}
		if !checkPublish {
			opts.Publisher = recorder
		}
		a, err := newApp(cmd.Context(), cfg, opts)
		if err != nil {
			return err
		}
		defer a.Close(context.Background())

		return runCheck(cmd.Context(), a, args[0], cmd.OutOrStdout(), checkOutput{Zip: checkZip, JSON: checkJSON}, recorder)
	},
}

func init() {
	checkCmd.Flags().StringVar(&checkZip, "zip", "", "write the cleaned GeoJSON and a shapefile to this zip")
	checkCmd.Flags().BoolVar(&checkPublish, "publish", false, "send the summary event to the configured broker")
	checkCmd.Flags().StringVar(&checkTrigger, "repair-trigger", "", "batchWide or perRecord (default from config)")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "print the full report as JSON")
	rootCmd.AddCommand(checkCmd)
}

type checkOutput struct {
	Zip  string
	JSON bool
}

func runCheck(ctx context.Context, a *app, path string, out io.Writer, opts checkOutput, recorder *events.Recorder) error {
	f, err := os.Open(path)
	if err != nil {
		return &handlers.IngestionError{Index: -1, Err: err}
	}
	defer f.Close()

	stop := startSpinner(os.Stderr, "cleaning "+filepath.Base(path))
	report, err := a.pipeline.RunDocument(ctx, filepath.Base(path), f)
	stop()
	if err != nil {
		return err
	}

	if opts.Zip != "" {
		jsonFC, err := json.Marshal(report.FeatureCollection())
		if err != nil {
			return err
		}
		zipData, err := utils.GenerateShapefileZip(jsonFC, report.Kept())
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}
		if err := os.WriteFile(opts.Zip, zipData, 0o644); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.Zip, err)
		}
	}

	if opts.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	_, dropped := a.publisher.(events.NopPublisher)
	printReport(out, report, recorder, dropped)
	return nil
}

// startSpinner animates on w until the returned func is called.
func startSpinner(w io.Writer, label string) func() {
	s := spin.New()
	s.Set(spin.Box1)
	done := make(chan struct{})
	finished := make(chan struct{})

	go func() {
		defer close(finished)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				fmt.Fprint(w, "\r\033[K")
				return
			case <-ticker.C:
				fmt.Fprintf(w, "\r  %s %s", color.CyanString(s.Next()), label)
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

// printReport writes the summary. dropped is set when the publisher discards
// events, so a successful send is not reported as published.
func printReport(w io.Writer, report *handlers.Report, recorder *events.Recorder, dropped bool) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	s := report.Summary
	fmt.Fprintf(w, "\n%s\n", cyan("=== "+report.Source+" ==="))
	fmt.Fprintf(w, "  Features:          %d\n", s.Total)

	if s.InvalidInitial == 0 {
		fmt.Fprintf(w, "  Invalid:           %s\n", green("0"))
	} else {
		fmt.Fprintf(w, "  Invalid:           %s\n", yellow(s.InvalidInitial))
		for _, row := range report.Issues {
			fmt.Fprintf(w, "    %s %s\n", gray(fmt.Sprintf("#%d %s", row.Index, row.Kind)), row.Issue)
		}
	}

	if slices.Contains(report.Stages, handlers.StageRepairSkipped) {
		fmt.Fprintf(w, "  Repair:            %s\n", gray("skipped"))
	} else {
		fmt.Fprintf(w, "  Repair:            %d attempted (%s)\n", s.RepairAttempted, report.Trigger)
	}

	if s.Unrepairable == 0 {
		fmt.Fprintf(w, "  Unrepairable:      %s\n", green("0"))
	} else {
		fmt.Fprintf(w, "  Unrepairable:      %s\n", red(s.Unrepairable))
		for _, row := range report.Unrepairable {
			fmt.Fprintf(w, "    %s %s\n", gray(fmt.Sprintf("#%d", row.Index)), row.RepairIssue)
		}
	}

	if s.Duplicates == 0 {
		fmt.Fprintf(w, "  Duplicates:        %s\n", green("0"))
	} else {
		fmt.Fprintf(w, "  Duplicates:        %s in %d groups\n", yellow(s.Duplicates), len(report.DuplicateGroups))
		for _, g := range report.DuplicateGroups {
			fmt.Fprintf(w, "    %s %v\n", gray(g.Kind), g.Indexes)
		}
	}

	fmt.Fprintf(w, "  Kept:              %d\n", s.Kept)
	fmt.Fprintf(w, "  Elapsed:           %.2fs\n", s.ElapsedSeconds)

	if report.Map != nil {
		fmt.Fprintf(w, "  Map:               center %.5f,%.5f zoom %d\n", report.Map.Center[0], report.Map.Center[1], report.Map.Zoom)
	} else {
		fmt.Fprintf(w, "  Map:               %s\n", red("no valid geometries to visualize"))
	}

	switch {
	case recorder != nil && len(recorder.Events) > 0:
		payload, _ := json.Marshal(recorder.Events[0].Payload)
		fmt.Fprintf(w, "  Event (not sent):  %s\n", gray(string(payload)))
	case report.Published && dropped:
		fmt.Fprintf(w, "  Event:             %s\n", yellow("not sent (backend none)"))
	case report.Published:
		fmt.Fprintf(w, "  Event:             %s\n", green("published"))
	default:
		fmt.Fprintf(w, "  Event:             %s\n", red("not published"))
	}
	fmt.Fprintln(w)
}
