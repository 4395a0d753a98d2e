package cli

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tagyard/tagyard-server/internal/jobs"
	"github.com/tagyard/tagyard-server/internal/logger"
	"github.com/tagyard/tagyard-server/internal/notify"
	"github.com/tagyard/tagyard-server/internal/relationship"
	"github.com/tagyard/tagyard-server/internal/store/sqlite"
)

// session is an open database with a loaded engine. Jobs the engine
// dispatches are held and run inline by drain.
type session struct {
	store   *sqlite.Store
	engine  *relationship.Engine
	pending []*jobs.Job
	logger  *slog.Logger
}

// Enqueue implements relationship.Dispatcher.
func (s *session) Enqueue(_ context.Context, job *jobs.Job) error {
	s.pending = append(s.pending, job)
	return nil
}

func newLogger(opts *RootOptions, cmd *cobra.Command) *logger.Logger {
	level := slog.LevelWarn
	if opts.Verbose {
		level = slog.LevelDebug
	}
	return logger.New(logger.Config{
		Writer:      cmd.ErrOrStderr(),
		Level:       level,
		Environment: "development",
	})
}

func openSession(ctx context.Context, opts *RootOptions, cmd *cobra.Command) (*session, error) {
	log := newLogger(opts, cmd)

	db, err := sqlite.Open(ctx, opts.DatabasePath, log.Logger)
	if err != nil {
		return nil, err
	}

	s := &session{store: db, logger: log.Logger}
	s.engine = relationship.New(relationship.Deps{
		Store:      db,
		Dispatcher: s,
		Notifier:   notify.NewNotifier(db, nil, log.Logger),
		Auditor:    notify.NewAuditor(db),
		Logger:     log.Logger,
		Config:     relationship.DefaultConfig(),
	})
	if err := s.engine.Load(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// drain runs every dispatched job in order. Failures are recorded on the
// relationship by the engine; the first one is returned.
func (s *session) drain(ctx context.Context) error {
	var first error
	for len(s.pending) > 0 {
		job := s.pending[0]
		s.pending = s.pending[1:]
		if err := s.engine.RunJob(ctx, job); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (s *session) Close() error {
	return s.store.Close()
}
