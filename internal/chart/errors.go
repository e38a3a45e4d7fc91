package chart

import (
	"errors"
	"fmt"
	"strings"
)

// ErrTemplateNotFound matches errors for show-only templates that are missing
// from the chart or rendered nothing.
var ErrTemplateNotFound = errors.New("could not find template")

const templateNotFoundHint = "the command is probably using templates with null output, " +
	"which usually means there is a helm value that needs to be set to render the content of the chart"

// TemplateNotFoundError is returned before rendering when a show-only path
// does not exist on disk.
type TemplateNotFoundError struct {
	Path string
}

func (e *TemplateNotFoundError) Error() string {
	return fmt.Sprintf("%s not found", e.Path)
}

func (e *TemplateNotFoundError) Is(target error) bool {
	return target == ErrTemplateNotFound
}

// RenderError is returned when helm exits non-zero or the in-process engine
// fails.
type RenderError struct {
	Command  []string
	Stdout   string
	Stderr   string
	ExitCode int
	// Hint explains common causes of the failure, if known.
	Hint  string
	Cause error
}

func (e *RenderError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "helm template failed (exit %d)", e.ExitCode)
	if msg := strings.TrimSpace(e.Stderr); msg != "" {
		b.WriteString(": ")
		b.WriteString(msg)
	}
	if e.Hint != "" {
		b.WriteString(" (hint: ")
		b.WriteString(e.Hint)
		b.WriteString(")")
	}
	return b.String()
}

func (e *RenderError) Unwrap() error {
	return e.Cause
}

func (e *RenderError) Is(target error) bool {
	return target == ErrTemplateNotFound && strings.Contains(e.Stderr, ErrTemplateNotFound.Error())
}

// CommandLine returns the failed command as a single shell-like string.
func (e *RenderError) CommandLine() string {
	return strings.Join(e.Command, " ")
}

func newRenderError(command []string, stdout, stderr string, exitCode int, cause error) *RenderError {
	e := &RenderError{
		Command:  command,
		Stdout:   stdout,
		Stderr:   stderr,
		ExitCode: exitCode,
		Cause:    cause,
	}
	if strings.Contains(stderr, ErrTemplateNotFound.Error()) {
		e.Hint = templateNotFoundHint
	}
	return e
}
