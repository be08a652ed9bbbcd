package models

import "time"

// ImportStage names a phase of the import pipeline for progress reporting.
type ImportStage string

const (
	StageInitializing     ImportStage = "initializing"
	StageScraping         ImportStage = "scraping"
	StageExtractingImages ImportStage = "extracting-images"
	StageSaving           ImportStage = "saving"
	StageComplete         ImportStage = "complete"
	StageError            ImportStage = "error"
)

// ImportProgress is the process-visible record of an in-flight import,
// keyed by subject id and polled by the admin UI.
type ImportProgress struct {
	Stage        ImportStage
	Message      string
	Percent      int // 0–100
	Log          []string
	ErrorMessage string
	Completed    bool
	UpdatedAt    time.Time
}

// ProgressFunc is invoked at each stage transition. Callers must treat it
// as fire-and-forget: it is never awaited and must not block the import.
type ProgressFunc func(stage ImportStage, message string, percent int, logLine string)
