package pipeline

import "fmt"

// Stage names a step of the pipeline.
type Stage string

const (
	StageLoad       Stage = "load"
	StagePreprocess Stage = "preprocess"
	StageDetect     Stage = "detect"
	StageRectify    Stage = "rectify"
	StageClean      Stage = "clean"
	StageTable      Stage = "table"
	StageRecognize  Stage = "recognize"
)

// StageError reports which stage stopped the pipeline.
//
// The original error (a stage sentinel or a context error) can be accessed
// via errors.Unwrap.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
