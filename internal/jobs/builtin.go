package jobs

import (
	"context"

	"github.com/diewo77/go-approvisionnements/internal/services"
	"github.com/rs/zerolog/log"
)

const (
	ReconcileJob    = "orders:reconcile"
	RefreshListsJob = "lists:refresh"

	refreshListsSchedule = "@every 30m"
)

// Builtin returns the standard maintenance jobs: total reconciliation on
// reconcileSchedule and a periodic refresh of the cached dropdown lists.
func Builtin(reconciler *services.Reconciler, catalog *services.CatalogService, reconcileSchedule string) []Job {
	return []Job{
		{
			Name:     ReconcileJob,
			Schedule: reconcileSchedule,
			Run: func(ctx context.Context) error {
				report, err := reconciler.Run(ctx, true)
				if err != nil {
					return err
				}
				for _, m := range report.Mismatches {
					log.Warn().
						Str("reference", m.Reference).
						Str("stored", m.Stored.String()).
						Str("computed", m.Computed.String()).
						Msg("order total corrected")
				}
				return nil
			},
		},
		{
			Name:     RefreshListsJob,
			Schedule: refreshListsSchedule,
			Run:      catalog.RefreshOptions,
		},
	}
}

// RegisterAll registers jobs on s, stopping at the first error.
func RegisterAll(s *Scheduler, jobs []Job) error {
	for _, j := range jobs {
		if err := s.Register(j); err != nil {
			return err
		}
	}
	return nil
}
