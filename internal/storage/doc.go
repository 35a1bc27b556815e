// Package storage provides the durable task and trigger registry used by the
// scheduling core.
//
// It currently supports:
//   - Task rows to the extent scheduling touches them (trigger handles,
//     template scans, instance creation with expansion markers)
//   - Named one-shot trigger rows (upsert on re-arm, compare-and-delete)
package storage
