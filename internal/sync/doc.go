// Package sync provides the orchestrator that turns queued sync operations
// into reads and writes against the system-of-record and external systems.
//
// # Components
//
//   - queue: the coalescing FIFO that webhooks and sweeps feed
//   - state: the tenant registry (configuration, watermarks, pause state)
//   - records: external mappings, the conflict audit trail and permanent failures
//   - coordinator: the scheduler running periodic sweeps per tenant
//
// # Processing an Operation
//
// A worker claims an operation and reconciles the entity between the
// system-of-record and every adapter the tenant enabled:
//
//  1. Load the tenant. A deleted tenant completes the operation with nothing to do.
//  2. Resolve the canonical id. A change from an unmapped external record is
//     fetched and created in the system-of-record first.
//  3. Fetch the entity from the system-of-record.
//  4. For each relevant adapter compare both sides against the versions stored in
//     the mapping. A one-sided change is propagated; a two-sided change is resolved
//     with the tenant's conflict policy, recorded, and written to the stale side(s).
//
// Adapter directions restrict writes: nothing is ever written to a pull adapter,
// and nothing is read from a push adapter.
//
// # Failures
//
// Transient errors are retried with exponential backoff up to the configured
// number of attempts. Permanent errors are recorded as failures and never
// retried. An authentication error pauses the adapter for the tenant and parks
// the operation until an operator resumes the adapter; operations for a paused
// adapter are parked without calling it.
//
// Adapter calls run on a context detached from cancellation with their own
// timeout, so shutdown and pauses never abort a write half way.
package sync
