// Package template resolves $name and ${name} placeholders in manifest
// strings against a dictionary of built-in and caller-supplied values.
// Some dictionary entries are thunks: nullary computations resolved only
// at substitution time, so a value like hostname or pid reflects whatever
// rank performs the resolution rather than the rank that loaded the
// manifest.
package template
