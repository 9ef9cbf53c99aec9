package analysis

import "fmt"

// InsufficientDataError means a column has too few observed values for an
// analysis. The analysis is skipped; other analyses continue.
type InsufficientDataError struct {
	Column   string
	Analysis string
	Have     int
	Need     int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s on %q: have %d values, need %d", e.Analysis, e.Column, e.Have, e.Need)
}

// Note records a skipped or degraded analysis.
type Note struct {
	Stage   string `json:"stage" yaml:"stage"`
	Column  string `json:"column,omitempty" yaml:"column,omitempty"`
	Message string `json:"message" yaml:"message"`
	Err     error  `json:"-" yaml:"-"`
}

func noteFromErr(stage, column string, err error) Note {
	return Note{Stage: stage, Column: column, Message: err.Error(), Err: err}
}
