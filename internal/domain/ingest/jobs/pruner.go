package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/FACorreiaa/bankfeed/internal/domain/ingest/repository"
)

// Pruner deletes finished import job records past their retention
// window on an hourly schedule.
type Pruner struct {
	store     repository.Store
	retention time.Duration
	logger    *slog.Logger
	cron      *cron.Cron
}

func NewPruner(store repository.Store, retention time.Duration, logger *slog.Logger) *Pruner {
	return &Pruner{
		store:     store,
		retention: retention,
		logger:    logger,
		cron:      cron.New(cron.WithLogger(cron.VerbosePrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelDebug)))),
	}
}

func (p *Pruner) Start(ctx context.Context) error {
	_, err := p.cron.AddFunc("@hourly", func() { p.prune(ctx) })
	if err != nil {
		return err
	}
	p.cron.Start()
	return nil
}

func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
}

func (p *Pruner) prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)
	deleted, err := p.store.DeleteFinishedJobsBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("import job prune failed", slog.Any("error", err))
		return
	}
	if deleted > 0 {
		p.logger.Info("pruned finished import jobs", slog.Int64("deleted", deleted))
	}
}
