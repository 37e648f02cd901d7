// Package scanner validates newly added folders before they become eligible
// to upload. One sequential worker characterizes a single folder at a time:
// it enumerates image files, checks integrity, sums sizes, and samples a
// bounded subset to estimate width/height aggregates. Scanning is serialized
// on purpose so validation I/O never competes with in-flight uploads.
package scanner
