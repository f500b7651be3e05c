package handlers

import "fmt"

// IngestionError means the input could not be read. Nothing else runs.
// Index is -1 for document-level problems.
type IngestionError struct {
	Index int
	Err   error
}

func (e *IngestionError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("ingestion failed: %v", e.Err)
	}
	return fmt.Sprintf("ingestion failed at feature %d: %v", e.Index, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

// GeometryProcessingError means a geometry could not even be tested or
// repaired. It aborts the run.
type GeometryProcessingError struct {
	Index int
	Stage string
	Err   error
}

func (e *GeometryProcessingError) Error() string {
	return fmt.Sprintf("%s failed on feature %d: %v", e.Stage, e.Index, e.Err)
}

func (e *GeometryProcessingError) Unwrap() error { return e.Err }
