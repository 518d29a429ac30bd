package manifest

import "fmt"

// LoadError is the Configuration error class: a malformed manifest, a
// missing required key, or an invalid enum value. It is always fatal to
// the coordinator's planning pass and never broadcast.
type LoadError struct {
	Err     error
	File    string
	Section string
	Key     string
}

func (e *LoadError) Error() string {
	if e.Section == "" {
		return fmt.Sprintf("%s: %v", e.File, e.Err)
	}
	if e.Key == "" {
		return fmt.Sprintf("%s: [%s]: %v", e.File, e.Section, e.Err)
	}
	return fmt.Sprintf("%s: [%s] %s: %v", e.File, e.Section, e.Key, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

func missingKeyErr(file, section, key string) error {
	return &LoadError{File: file, Section: section, Key: key, Err: fmt.Errorf("required key is missing")}
}

func invalidValueErr(file, section, key string, err error) error {
	return &LoadError{File: file, Section: section, Key: key, Err: err}
}

func parseErr(file string, err error) error {
	return &LoadError{File: file, Err: fmt.Errorf("parse manifest: %w", err)}
}
