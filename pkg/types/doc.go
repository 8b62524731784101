// Package types defines the shared vocabulary of the imago bridge: temporal
// coordinates, canonical graphs and their statements, lineage records,
// snapshots, and the framework/extension types consumed by adapters.
//
// Everything here is a plain value type with no dependencies on the store or
// the orchestrator, so every other package can import it freely.
package types
