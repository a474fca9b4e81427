package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/ngds/geobridge/internal/domain"
	"github.com/ngds/geobridge/internal/ports/output"
)

// ReconcileResult contains the result of a reconcile pass.
type ReconcileResult struct {
	Checked         int       `json:"checked"`
	Removed         int       `json:"removed"`
	Failed          int       `json:"failed"`
	ReconciledAt    time.Time `json:"reconciled_at"`
	NextScheduledAt time.Time `json:"next_scheduled_at,omitempty"`
}

// Reconciler drops ledger entries whose layer no longer exists on its
// catalog, periodically or on demand. Entries whose catalog cannot be
// reached are kept.
type Reconciler struct {
	catalogs output.CatalogProvider
	ledger   output.PublicationLedger
	interval time.Duration
	logger   *slog.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup

	// Prevents concurrent passes
	opMu sync.Mutex

	nextRun time.Time
	nextMu  sync.RWMutex
}

// NewReconciler creates a new reconciler.
func NewReconciler(catalogs output.CatalogProvider, ledger output.PublicationLedger, interval time.Duration, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		catalogs: catalogs,
		ledger:   ledger,
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the periodic scheduler.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("starting ledger reconciler", "interval", r.interval)

	r.wg.Add(1)
	go r.run(ctx)
}

func (r *Reconciler) run(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.setNextRun(time.Now().Add(r.interval))

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("ledger reconciler stopped: context canceled")
			return
		case <-r.stopCh:
			r.logger.Info("ledger reconciler stopped")
			return
		case <-ticker.C:
			res, err := r.Reconcile(ctx)
			if err != nil {
				r.logger.Error("reconcile failed", "error", err)
			} else {
				r.logger.Info("reconcile completed",
					"checked", res.Checked,
					"removed", res.Removed,
					"failed", res.Failed,
				)
			}
			r.setNextRun(time.Now().Add(r.interval))
		}
	}
}

// Stop gracefully stops the scheduler.
func (r *Reconciler) Stop() {
	r.logger.Info("stopping ledger reconciler")
	close(r.stopCh)
	r.wg.Wait()
}

// Reconcile checks every publication once.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	r.opMu.Lock()
	defer r.opMu.Unlock()

	pubs, err := r.ledger.List(ctx, "")
	if err != nil {
		return ReconcileResult{}, err
	}

	res := ReconcileResult{Checked: len(pubs)}
	for _, pub := range pubs {
		gone, err := r.layerGone(ctx, pub)
		if err != nil {
			res.Failed++
			r.logger.Warn("cannot check published layer",
				"layer", pub.Workspace+":"+pub.Layer,
				"geoserver", pub.GeoServer,
				"error", err,
			)
			continue
		}
		if !gone {
			continue
		}

		if err := r.ledger.Remove(ctx, pub.GeoServer, pub.Workspace, pub.Layer); err != nil && !errors.Is(err, domain.ErrNotFound) {
			res.Failed++
			r.logger.Warn("cannot remove stale publication", "layer", pub.Workspace+":"+pub.Layer, "error", err)
			continue
		}
		res.Removed++
		r.logger.Info("stale publication removed",
			"resource_id", pub.ResourceID,
			"layer", pub.Workspace+":"+pub.Layer,
			"geoserver", pub.GeoServer,
		)
	}

	res.ReconciledAt = time.Now().UTC()
	res.NextScheduledAt = r.getNextRun()
	return res, nil
}

func (r *Reconciler) layerGone(ctx context.Context, pub domain.Publication) (bool, error) {
	cat, err := r.catalogs.Catalog(pub.GeoServer)
	if err != nil {
		return false, err
	}
	_, err = cat.GetLayer(ctx, pub.Workspace, pub.Layer)
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, domain.ErrNotFound):
		return true, nil
	default:
		return false, err
	}
}

func (r *Reconciler) setNextRun(t time.Time) {
	r.nextMu.Lock()
	defer r.nextMu.Unlock()
	r.nextRun = t
}

func (r *Reconciler) getNextRun() time.Time {
	r.nextMu.RLock()
	defer r.nextMu.RUnlock()
	return r.nextRun
}

// Interval returns the scheduling interval.
func (r *Reconciler) Interval() time.Duration {
	return r.interval
}
