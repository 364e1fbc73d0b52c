package config

import "fmt"

// Error is a ConfigError per the error taxonomy in §7: a fatal problem
// found while loading or validating a configuration document, carrying
// the source key path so the message points at the offending YAML key.
type Error struct {
	Path string // dotted key path, e.g. "steps.align(bowtie2).module"
	Msg  string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Path, e.Msg)
}

func errf(path, format string, args ...interface{}) *Error {
	return &Error{Path: path, Msg: fmt.Sprintf(format, args...)}
}
