package state

import (
	"context"
	"time"

	"github.com/stacklok/crmsync/internal/status"
)

// AdvanceWatermark moves the watermark of source forward to ts.
// Watermarks never move backwards; an older ts is ignored and false is returned.
func AdvanceWatermark(ctx context.Context, svc TenantStateService, tenantID, source string, ts time.Time) (bool, error) {
	ts = ts.UTC()
	return svc.UpdateAtomically(ctx, tenantID, func(st *status.TenantState) bool {
		if current, ok := st.Watermarks[source]; ok && !ts.After(current) {
			return false
		}
		if st.Watermarks == nil {
			st.Watermarks = map[string]time.Time{}
		}
		st.Watermarks[source] = ts
		return true
	})
}

// MarkFullSync records ts as the completion time of a sweep in which every source succeeded
func MarkFullSync(ctx context.Context, svc TenantStateService, tenantID string, ts time.Time) error {
	ts = ts.UTC()
	_, err := svc.UpdateAtomically(ctx, tenantID, func(st *status.TenantState) bool {
		if st.LastFullSyncAt != nil && !ts.After(*st.LastFullSyncAt) {
			return false
		}
		st.LastFullSyncAt = &ts
		return true
	})
	return err
}

// PauseTenant stops all processing for a tenant until ResumeTenant
func PauseTenant(ctx context.Context, svc TenantStateService, tenantID string) (bool, error) {
	return svc.UpdateAtomically(ctx, tenantID, func(st *status.TenantState) bool {
		if st.Paused {
			return false
		}
		st.Paused = true
		return true
	})
}

// ResumeTenant lifts an administrative pause
func ResumeTenant(ctx context.Context, svc TenantStateService, tenantID string) (bool, error) {
	return svc.UpdateAtomically(ctx, tenantID, func(st *status.TenantState) bool {
		if !st.Paused {
			return false
		}
		st.Paused = false
		return true
	})
}

// PauseAdapter disconnects one adapter of a tenant, recording why.
// Adapters the tenant does not use are ignored.
func PauseAdapter(ctx context.Context, svc TenantStateService, tenantID, adapter, reason string) (bool, error) {
	return svc.UpdateAtomically(ctx, tenantID, func(st *status.TenantState) bool {
		if _, ok := st.Adapter(adapter); !ok {
			return false
		}
		if current, ok := st.PausedAdapters[adapter]; ok && current == reason {
			return false
		}
		if st.PausedAdapters == nil {
			st.PausedAdapters = map[string]string{}
		}
		st.PausedAdapters[adapter] = reason
		return true
	})
}

// ResumeAdapter reconnects a paused adapter
func ResumeAdapter(ctx context.Context, svc TenantStateService, tenantID, adapter string) (bool, error) {
	return svc.UpdateAtomically(ctx, tenantID, func(st *status.TenantState) bool {
		if _, ok := st.PausedAdapters[adapter]; !ok {
			return false
		}
		delete(st.PausedAdapters, adapter)
		return true
	})
}
