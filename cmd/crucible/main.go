package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/crucible/internal/api"
	"github.com/seantiz/crucible/internal/config"
	"github.com/seantiz/crucible/internal/event"
	"github.com/seantiz/crucible/internal/registry"
	"github.com/seantiz/crucible/internal/run"
	"github.com/seantiz/crucible/internal/store"
	"github.com/seantiz/crucible/internal/taskq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := config.NewLogger(os.Stdout, cfg.LogLevel)

	logger.Info("crucible: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"cycle_delay", cfg.CycleDelay.String(),
	)

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	broker := event.NewBroker()

	loop := taskq.NewLoop(logger)
	defer loop.Close()

	suite := registry.New(cfg.SuiteName, db, broker, logger)
	if err := registerSmokeTests(suite); err != nil {
		log.Fatalf("register smoke tests: %v", err)
	}

	ctx := context.Background()
	if err := suite.Begin(ctx); err != nil {
		log.Fatalf("begin suite: %v", err)
	}
	logger.Info("suite opened", "run_id", suite.RunID(), "tests", suite.Len())

	driver := run.New(cfg.SuiteName, suite, loop, logger)
	driver.Delay = cfg.CycleDelay

	g, gctx := errgroup.WithContext(ctx)

	srv := api.NewServer(cfg.ListenAddr, db, broker, logger)
	g.Go(func() error {
		return srv.Run(gctx)
	})

	// The driver finishing is not a reason to stop serving: results stay
	// queryable until the server shuts down.
	g.Go(func() error {
		if err := driver.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("driver: %w", err)
		}
		attempts, passes, failures := suite.Counters()
		logger.Info("suite complete",
			"attempts", attempts,
			"passes", passes,
			"failures", failures,
		)
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Fatalf("crucible: %v", err)
	}
}

// smokeScope is the shared state the built-in smoke tests thread through
// their phases.
type smokeScope struct {
	values []int
	sum    int
}

// registerSmokeTests installs a small built-in suite so a fresh deployment
// produces a verifiable run without any external test definitions.
func registerSmokeTests(suite *registry.Suite) error {
	scope := &smokeScope{}

	err := suite.RegisterFunc("smoke.sum", scope,
		func(ctx context.Context, s any) error {
			sc := s.(*smokeScope)
			sc.values = []int{1, 2, 3}
			sc.sum = 0
			return nil
		},
		func(ctx context.Context, s any) error {
			sc := s.(*smokeScope)
			for _, v := range sc.values {
				sc.sum += v
			}
			if sc.sum != 6 {
				return fmt.Errorf("sum = %d, want 6", sc.sum)
			}
			return nil
		},
		func(ctx context.Context, s any) error {
			sc := s.(*smokeScope)
			sc.values = nil
			return nil
		},
	)
	if err != nil {
		return err
	}

	// A body-only test: nil setUp and tearDown are treated as no-ops.
	return suite.RegisterFunc("smoke.body-only", nil,
		nil,
		func(ctx context.Context, s any) error { return nil },
		nil,
	)
}
