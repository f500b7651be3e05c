package handlers

import "time"

// DefaultEventTopic is where upload summaries are published.
const DefaultEventTopic = "geojson_upload_events"

// UploadEvent summarizes one run for the messaging collaborator.
type UploadEvent struct {
	RunID             string
	SourceName        string
	Timestamp         time.Time
	ElapsedSeconds    float64
	TotalFeatureCount int
}

// NewUploadEvent builds the event for a finished report. TotalFeatureCount
// is the number of kept features.
func NewUploadEvent(report *Report, at time.Time) UploadEvent {
	return UploadEvent{
		RunID:             report.RunID,
		SourceName:        report.Source,
		Timestamp:         at,
		ElapsedSeconds:    report.Summary.Elapsed.Seconds(),
		TotalFeatureCount: report.Summary.Kept,
	}
}

// Payload is the JSON-serializable form sent to the broker.
func (e UploadEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"runId":             e.RunID,
		"sourceName":        e.SourceName,
		"timestamp":         e.Timestamp.UTC().Format(time.RFC3339Nano),
		"elapsedSeconds":    e.ElapsedSeconds,
		"totalFeatureCount": e.TotalFeatureCount,
	}
}
