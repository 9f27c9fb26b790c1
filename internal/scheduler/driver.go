package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper runs one pass of the pipeline for a tick.
type Sweeper interface {
	Sweep(ctx context.Context, tick int64)
}

// Driver fires the sweeper periodically. A firing that lands while the
// previous sweep is still running is skipped, so the counter is never advanced
// for a sweep that does not run.
type Driver struct {
	interval time.Duration
	counter  *Counter
	sweeper  Sweeper
	log      zerolog.Logger
}

func NewDriver(interval time.Duration, counter *Counter, sweeper Sweeper, log zerolog.Logger) (*Driver, error) {
	if interval < time.Second {
		return nil, errors.New("scheduler interval must be at least one second")
	}
	if counter == nil || sweeper == nil {
		return nil, errors.New("scheduler requires a counter and a sweeper")
	}
	return &Driver{
		interval: interval,
		counter:  counter,
		sweeper:  sweeper,
		log:      log,
	}, nil
}

// Fire advances the counter once and runs a sweep for the new tick.
func (d *Driver) Fire(ctx context.Context) int64 {
	tick := d.counter.Advance()
	start := time.Now()
	d.log.Debug().Int64("tick", tick).Msg("sweep started")

	d.sweeper.Sweep(ctx, tick)

	d.log.Debug().
		Int64("tick", tick).
		Dur("duration", time.Since(start)).
		Msg("sweep finished")
	return tick
}

// Run blocks until ctx is cancelled, then waits for the running sweep to return.
func (d *Driver) Run(ctx context.Context) error {
	cronLog := cronLogger{log: d.log}
	c := cron.New(cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)))
	c.Schedule(cron.Every(d.interval), cron.FuncJob(func() {
		if ctx.Err() != nil {
			return
		}
		d.Fire(ctx)
	}))

	d.log.Info().Dur("interval", d.interval).Msg("scheduler started")
	c.Start()

	<-ctx.Done()

	d.log.Info().Msg("scheduler stopping, waiting for running sweep")
	<-c.Stop().Done()
	d.log.Info().Int64("last_tick", d.counter.Current()).Msg("scheduler stopped")

	return ctx.Err()
}

// cronLogger adapts zerolog to cron.Logger.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
