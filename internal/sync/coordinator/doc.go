// Package coordinator schedules the periodic change sweeps of every tenant.
//
// Webhooks are the primary way changes reach the sync queue. Sweeps are the
// safety net for notifications that never arrived: every tenant gets its own
// loop that sleeps for the tenant's sync interval and then asks each source
// system for everything modified after the last watermark.
//
// # Sweep Flow
//
//  1. Skip the tenant when sync is disabled or the tenant is paused
//  2. Capture the sweep start time T1
//  3. For the system-of-record and each readable, unpaused adapter, fetch every
//     kind changed since the source's watermark and enqueue one operation per entity
//  4. Once all operations of a source are enqueued, advance its watermark to T1
//  5. When every source succeeded, record T1 as the last full sync
//
// A source that fails keeps its watermark, so the next sweep fetches an
// overlapping window. Coalescing in the queue and idempotent upserts make the
// overlap harmless. An AuthError pauses the adapter for the tenant until an
// operator resumes it.
//
// # Restart Recovery
//
// The queue lives in memory only. Operations enqueued before a crash but not
// yet processed are lost, so the first sweep of each tenant after start rewinds
// every watermark by the configured recovery lookback.
//
// # Usage Example
//
//	scheduler := coordinator.New(adapters, "ghl", stateSvc, store, q,
//	    coordinator.WithClock(clock.Real{}),
//	    coordinator.WithRecoveryLookback(time.Hour),
//	)
//
//	go func() { _ = scheduler.Start(ctx) }()
//	defer scheduler.Stop()
//
//	// tenants created through the admin API
//	scheduler.EnsureTenant("acme")
package coordinator
