// Package backfill fills in missing embeddings for records in a RecordStore.
//
// A Job pulls bounded batches from a Selector, embeds each row's text and
// writes the vector back one row at a time. Rows with blank text are
// skipped, and a failed update is recorded in the Outcome without
// aborting the rest of the batch. Only a failure to select a batch ends a
// run early.
//
// RunOnce performs a single pass, which is what a scheduler invoking the
// job repeatedly wants. RunUntilExhausted loops over passes until the
// selector runs dry or a pass makes no progress.
package backfill
