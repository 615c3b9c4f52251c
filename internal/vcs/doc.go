// Package vcs keeps the export output tree under version control.
//
// Every artifact written by a run is staged as an addition or modification,
// every artifact the run removes is staged as a removal, and a single commit
// summarizing the run is recorded at the end. The repository is created on
// first use.
package vcs
