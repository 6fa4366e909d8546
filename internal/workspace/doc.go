// Package workspace provides isolated per-job build directories.
//
// Every job owns exactly one workspace for its whole lifetime; no two
// concurrent jobs ever share a path. Release is idempotent and runs on every
// exit path, so a returned Result never leaves files behind.
package workspace
