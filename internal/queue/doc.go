// Package queue owns the in-memory gallery map and its state machine. Every
// mutation (status change, counters, persistence scheduling) happens under
// one mutex; durable writes go through the store's background writer so
// rapid mutations coalesce into one transaction.
package queue
