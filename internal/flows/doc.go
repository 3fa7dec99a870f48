// Package flows contains the orchestration behind every Engine operation.
//
// Each Run function accepts a dependency struct of plain functions and
// returns an internal outcome. The engine owns every resource the functions
// close over and maps outcomes onto its fixed external responses.
//
// This package must not import goReset, and holds no state between calls.
package flows
