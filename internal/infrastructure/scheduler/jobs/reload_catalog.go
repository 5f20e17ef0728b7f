package jobs

import (
	"context"

	"github.com/beanwise/learning-engine/internal/infrastructure/catalog"
	"github.com/beanwise/learning-engine/pkg/logger"
)

// ReloadCatalogJob re-reads the catalog file and upserts it, so content and
// achievement edits go live without a restart.
type ReloadCatalogJob struct {
	path    string
	writers catalog.Writers
	log     *logger.Logger
}

// NewReloadCatalogJob creates the job. An empty path uses the built-in seed.
func NewReloadCatalogJob(path string, writers catalog.Writers, log *logger.Logger) *ReloadCatalogJob {
	if log == nil {
		log = logger.Nop()
	}
	return &ReloadCatalogJob{path: path, writers: writers, log: log.With(logger.Component("reload_catalog"))}
}

// Name implements scheduler.Job.
func (j *ReloadCatalogJob) Name() string { return "reload_catalog" }

// Description implements scheduler.Job.
func (j *ReloadCatalogJob) Description() string {
	return "Reloads achievements, leagues and lessons from the catalog file"
}

// Run implements scheduler.Job.
func (j *ReloadCatalogJob) Run(ctx context.Context) error {
	f, err := catalog.Load(j.path)
	if err != nil {
		return err
	}
	res, err := catalog.Seed(ctx, f, j.writers)
	if err != nil {
		return err
	}
	j.log.Info("catalog reloaded",
		logger.Int("achievements", res.Achievements),
		logger.Int("leagues", res.Leagues),
		logger.Int("lessons", res.Lessons),
	)
	return nil
}
