package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/bsaid97/go-geojson-cleaner/events"
	"github.com/bsaid97/go-geojson-cleaner/geometry"
	"github.com/bsaid97/go-geojson-cleaner/logger"
	"github.com/bsaid97/go-geojson-cleaner/metrics"
	"github.com/bsaid97/go-geojson-cleaner/utils"
	"github.com/google/uuid"
)

// Stage is a step of a pipeline run.
type Stage string

const (
	StageIngested        Stage = "ingested"
	StageValidated       Stage = "validated"
	StageRepairAttempted Stage = "repair_attempted"
	StageRepairSkipped   Stage = "repair_skipped"
	StageDeduplicated    Stage = "deduplicated"
	StageReported        Stage = "reported"
)

type Summary struct {
	Total           int           `json:"total"`
	InvalidInitial  int           `json:"invalidInitial"`
	RepairAttempted int           `json:"repairAttempted"`
	Unrepairable    int           `json:"unrepairable"`
	Duplicates      int           `json:"duplicates"`
	Kept            int           `json:"kept"`
	Elapsed         time.Duration `json:"-"`
	ElapsedSeconds  float64       `json:"elapsedSeconds"`
}

type IssueRow struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
	Issue string `json:"issue"`
}

// UnrepairableRow carries the original geometry so it can be shown next to
// the reason the repair did not validate.
type UnrepairableRow struct {
	Index       int               `json:"index"`
	Geometry    geometry.Geometry `json:"geometry"`
	RepairIssue string            `json:"repairIssue"`
}

type DuplicateRow struct {
	Index      int                    `json:"index"`
	Group      int                    `json:"group"`
	Kind       string                 `json:"kind"`
	Properties map[string]interface{} `json:"properties,omitempty"`
}

// Report is everything a run produces.
type Report struct {
	RunID           string             `json:"runId"`
	Source          string             `json:"source"`
	Trigger         RepairTrigger      `json:"repairTrigger"`
	Stages          []Stage            `json:"stages"`
	Summary         Summary            `json:"summary"`
	Issues          []IssueRow         `json:"issues"`
	Unrepairable    []UnrepairableRow  `json:"unrepairable"`
	Duplicates      []DuplicateRow     `json:"duplicates"`
	DuplicateGroups []DuplicateGroup   `json:"duplicateGroups"`
	Map             *MapView           `json:"map"`
	Records         []*geometry.Record `json:"records"`
	Published       bool               `json:"published"`

	kept []*geometry.Record
}

// Stage returns the last stage reached.
func (r *Report) Stage() Stage {
	if len(r.Stages) == 0 {
		return ""
	}
	return r.Stages[len(r.Stages)-1]
}

// Kept returns the records that survived validation and repair.
func (r *Report) Kept() []*geometry.Record { return r.kept }

// FeatureCollection is the kept set as GeoJSON for the map collaborator.
func (r *Report) FeatureCollection() geometry.FeatureCollection {
	return geometry.EncodeFeatureCollection(r.kept)
}

func (r *Report) advance(s Stage) { r.Stages = append(r.Stages, s) }

type Options struct {
	Pool      *utils.WorkerPool
	Validator GeometryValidator
	Repairer  GeometryRepairer
	Trigger   RepairTrigger

	// Publish turns on the summary event. Publisher may be nil when the
	// broker could not be reached; the send is then a logged no-op.
	Publish   bool
	Publisher events.Publisher
	Topic     string

	Logger *slog.Logger
	Now    func() time.Time
}

// Pipeline runs Validate, Repair and Deduplicate over one batch of features.
// A Pipeline is safe to reuse and to run concurrently.
type Pipeline struct {
	opts Options
}

func NewPipeline(opts Options) *Pipeline {
	if opts.Pool == nil {
		opts.Pool = utils.NewWorkerPool(0)
	}
	if opts.Validator == nil {
		opts.Validator = NewValidator()
	}
	if opts.Repairer == nil {
		opts.Repairer = NewRepairer(0)
	}
	if opts.Trigger == "" {
		opts.Trigger = RepairBatchWide
	}
	if opts.Topic == "" {
		opts.Topic = DefaultEventTopic
	}
	if opts.Logger == nil {
		opts.Logger = logger.L()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pipeline{opts: opts}
}

// RunDocument decodes a GeoJSON document and runs it. Read and parse failures
// are returned as *IngestionError before any stage runs.
func (p *Pipeline) RunDocument(ctx context.Context, source string, r io.Reader) (*Report, error) {
	features, err := geometry.DecodeFeatureCollection(r)
	if err != nil {
		ierr := &IngestionError{Index: -1, Err: err}
		var fe *geometry.FeatureError
		if errors.As(err, &fe) {
			ierr.Index = fe.Index
			ierr.Err = fe.Err
		}
		metrics.ObserveAbort("ingestion_error")
		p.opts.Logger.Error("ingestion_error", "source", source, "err", ierr)
		return nil, ierr
	}
	p.opts.Logger.Info("geojson_loaded", "source", source, "features", len(features))
	return p.Run(ctx, source, features)
}

// Run processes features and returns the report. A geometry that cannot be
// tested or repaired aborts the run with a *GeometryProcessingError.
func (p *Pipeline) Run(ctx context.Context, source string, features []geometry.Feature) (*Report, error) {
	start := p.opts.Now()
	log := p.opts.Logger.With("source", source)

	store := geometry.NewStore(features)
	report := &Report{
		RunID:        uuid.NewString(),
		Source:       source,
		Trigger:      p.opts.Trigger,
		Issues:       make([]IssueRow, 0),
		Unrepairable: make([]UnrepairableRow, 0),
		Duplicates:   make([]DuplicateRow, 0),
		Records:      store.Records(),
	}
	report.Summary.Total = store.Len()
	report.advance(StageIngested)
	log = log.With("run_id", report.RunID)

	if err := p.validate(ctx, store, report, log); err != nil {
		return nil, p.abort(log, err)
	}
	report.advance(StageValidated)

	if err := p.repair(ctx, store, report, log); err != nil {
		return nil, p.abort(log, err)
	}

	report.kept = store.Kept()
	report.Summary.Kept = len(report.kept)
	p.deduplicate(report, log)
	report.advance(StageDeduplicated)

	if len(report.kept) > 0 {
		view, err := BuildMapView(report.kept)
		if err != nil {
			log.Warn("map_view_error", "err", err)
		}
		report.Map = view
	} else {
		log.Error("no_valid_geometries_to_visualize")
	}

	report.Summary.Elapsed = p.opts.Now().Sub(start)
	report.Summary.ElapsedSeconds = report.Summary.Elapsed.Seconds()
	report.advance(StageReported)

	metrics.ObserveRun(report.Summary.Total, report.Summary.InvalidInitial, report.Summary.Unrepairable,
		report.Summary.Duplicates, report.Summary.Elapsed)
	log.Info("run_reported",
		"total", report.Summary.Total,
		"invalid", report.Summary.InvalidInitial,
		"unrepairable", report.Summary.Unrepairable,
		"duplicates", report.Summary.Duplicates,
		"kept", report.Summary.Kept,
		"elapsed", fmt.Sprintf("%.2fs", report.Summary.ElapsedSeconds))

	if p.opts.Publish {
		event := NewUploadEvent(report, p.opts.Now())
		if err := events.Send(ctx, p.opts.Publisher, p.opts.Topic, event.Payload(), log); err != nil {
			metrics.PublishFailuresTotal.Inc()
		} else {
			report.Published = true
		}
	}

	return report, nil
}

func (p *Pipeline) validate(ctx context.Context, store *geometry.Store, report *Report, log *slog.Logger) error {
	verdicts, err := ValidateAll(ctx, p.opts.Pool, p.opts.Validator, store.Geometries())
	if err != nil {
		return err
	}

	for i, verdict := range verdicts {
		rec := store.Record(i)
		if err := rec.SetVerdict(verdict.Valid, verdict.Issue); err != nil {
			return &GeometryProcessingError{Index: i, Stage: stageValidation, Err: err}
		}
		if !verdict.Valid {
			report.Issues = append(report.Issues, IssueRow{Index: i, Kind: rec.Geometry.Kind(), Issue: verdict.Issue})
		}
	}
	report.Summary.InvalidInitial = len(report.Issues)

	if report.Summary.InvalidInitial > 0 {
		log.Warn("invalid_geometries_detected", "count", report.Summary.InvalidInitial)
	} else {
		log.Info("all_geometries_valid")
	}
	return nil
}

func (p *Pipeline) repair(ctx context.Context, store *geometry.Store, report *Report, log *slog.Logger) error {
	targets := selectForRepair(p.opts.Trigger, store)
	if len(targets) == 0 {
		report.advance(StageRepairSkipped)
		return nil
	}

	repairs, err := RepairAll(ctx, p.opts.Pool, p.opts.Repairer, targets)
	if err != nil {
		return err
	}
	for i, rec := range targets {
		r := repairs[i]
		if err := rec.SetRepair(r.Geometry, r.Valid, r.Issue); err != nil {
			return &GeometryProcessingError{Index: rec.Index(), Stage: stageRepair, Err: err}
		}
	}
	report.Summary.RepairAttempted = len(targets)
	report.advance(StageRepairAttempted)

	for _, rec := range store.Unrepairable() {
		report.Unrepairable = append(report.Unrepairable, UnrepairableRow{
			Index:       rec.Index(),
			Geometry:    rec.Geometry,
			RepairIssue: rec.RepairIssue,
		})
	}
	report.Summary.Unrepairable = len(report.Unrepairable)

	if report.Summary.Unrepairable == 0 {
		log.Info("all_geometries_repaired", "attempted", len(targets), "trigger", p.opts.Trigger)
	} else {
		log.Error("geometries_remain_invalid", "count", report.Summary.Unrepairable, "attempted", len(targets))
	}
	return nil
}

func (p *Pipeline) deduplicate(report *Report, log *slog.Logger) {
	groups := FindDuplicates(report.kept)
	flagged := DuplicateIndexes(groups)

	for _, rec := range report.kept {
		gi, ok := flagged[rec.Index()]
		if !ok {
			continue
		}
		report.Duplicates = append(report.Duplicates, DuplicateRow{
			Index:      rec.Index(),
			Group:      gi,
			Kind:       groups[gi].Kind,
			Properties: rec.Properties,
		})
	}
	report.DuplicateGroups = groups
	report.Summary.Duplicates = len(report.Duplicates)

	if report.Summary.Duplicates > 0 {
		log.Warn("duplicate_geometries_detected", "count", report.Summary.Duplicates, "groups", len(groups))
	} else {
		log.Info("no_duplicate_geometries")
	}
}

func (p *Pipeline) abort(log *slog.Logger, err error) error {
	var gerr *GeometryProcessingError
	if errors.As(err, &gerr) {
		metrics.ObserveAbort("processing_error")
		log.Error("geometry_processing_error", "index", gerr.Index, "stage", gerr.Stage, "err", gerr.Err)
		return err
	}
	metrics.ObserveAbort("error")
	log.Error("run_aborted", "err", err)
	return err
}
