// Package venv provides virtual environment operations for the
// venv-bootstrap CLI.
//
// Environments are created by shelling out to the interpreter's own venv
// module rather than reproducing its layout in Go, so the on-disk structure
// always matches what the operator's interpreter produces. Activation does
// not touch the parent process: it yields a runner.Overlay that later child
// processes run with.
package venv
