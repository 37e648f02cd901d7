// Package engine drives one gallery's full transfer: named-or-anonymous
// remote gallery acquisition, a rolling window of concurrent per-image
// uploads, bounded retry passes over failures, resume-set merging, and a
// deterministic aggregate result ordered by on-disk enumeration.
//
// The engine owns no UI and no persistence. It reports through a typed
// event channel and returns a Result; the queue driver translates both
// into status mutations and store writes.
package engine
