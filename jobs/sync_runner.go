package jobs

import (
	"context"
	"sync"
	"time"

	"mediavault/models"
	"mediavault/services"
	"mediavault/utils"
)

// SystemIdentity triggers scheduled syncs. Folders it creates have no owner.
var SystemIdentity = models.Identity{Role: models.RoleAdmin}

type SyncRunner struct {
	syncService *services.SyncService
	interval    time.Duration
	mu          sync.Mutex

	lastMu     sync.RWMutex
	lastResult *services.SyncResult
	lastRunAt  time.Time
}

func NewSyncRunner(syncService *services.SyncService, interval time.Duration) *SyncRunner {
	return &SyncRunner{
		syncService: syncService,
		interval:    interval,
	}
}

// Run performs one sync. A sync already in flight makes it return
// utils.ErrSyncInProgress without waiting.
func (r *SyncRunner) Run(ctx context.Context, identity models.Identity) (services.SyncResult, error) {
	if !r.mu.TryLock() {
		return services.SyncResult{}, utils.ErrSyncInProgress
	}
	defer r.mu.Unlock()

	result, err := r.syncService.Sync(ctx, identity)
	if err != nil {
		return result, err
	}

	r.lastMu.Lock()
	r.lastResult = &result
	r.lastRunAt = time.Now()
	r.lastMu.Unlock()
	return result, nil
}

// Last returns the result of the most recent successful sync, if any.
func (r *SyncRunner) Last() (services.SyncResult, time.Time, bool) {
	r.lastMu.RLock()
	defer r.lastMu.RUnlock()
	if r.lastResult == nil {
		return services.SyncResult{}, time.Time{}, false
	}
	return *r.lastResult, r.lastRunAt, true
}

// Start runs a sync immediately and then on every tick until ctx is done.
// It returns at once when no interval is configured.
func (r *SyncRunner) Start(ctx context.Context) error {
	if r.interval <= 0 {
		return nil
	}
	utils.LogInfo("Starting periodic sync every %v", r.interval)

	r.runScheduled(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.runScheduled(ctx)
		}
	}
}

func (r *SyncRunner) runScheduled(ctx context.Context) {
	result, err := r.Run(ctx, SystemIdentity)
	if err != nil {
		utils.LogWarning("Scheduled sync skipped: %v", err)
		return
	}
	utils.LogDebug("Scheduled sync: %+v", result)
}
