// Package uploader talks to the remote gallery host.
//
// It owns a fixed pool of reusable transfer handles, one per worker slot.
// Each handle wraps an http.Client whose connection is amortized across many
// sequential uploads on that slot; session state (cookies) is cleared exactly
// once per gallery boundary, never per image, because the remote service
// associates an in-progress session with a gallery across its images.
// Network failures are classified (timeout, connect failure, other) so the
// engine can apply differentiated retry policy.
package uploader
