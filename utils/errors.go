package utils

import "fmt"

// ParseError is returned when an input file cannot be understood: invalid
// JSON, invalid geometry or a spreadsheet missing required columns. It is
// always fatal for the run.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("failed to parse %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// WriteError is returned when an output file cannot be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("failed to write %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// MissingDataWarning describes a tabular record that was skipped because a
// required value was empty. Processing continues.
type MissingDataWarning struct {
	Row    int
	Column string
	Record map[string]interface{}
}

func (w MissingDataWarning) String() string {
	return fmt.Sprintf("row %d: no %q, skipping entry %v", w.Row, w.Column, w.Record)
}
