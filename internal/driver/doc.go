// Package driver runs the upload side of the queue: a single goroutine
// dequeues queued galleries and pushes exactly one at a time through the
// engine, translating engine results into terminal statuses and durable
// rows. After a primary transfer completes it distributes the gallery to
// any configured mirror destinations.
package driver
