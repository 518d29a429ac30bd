// Package manifest loads the two INI-style manifest flavors described by
// the distribution planner's inputs: the preservice bundle manifest
// ([Meta]/[Config]) and the per-service unit manifest
// ([Unit]/[Service]/[Environment]). Unit manifests are loaded unresolved;
// callers resolve their templated fields per rank via internal/template.
package manifest
