package vidardb

import (
	"context"
	"sync"
	"time"

	"github.com/vidardb/vidardb/internal/logger"
)

// flushScheduler owns the two background goroutines that keep the engine
// durable without a caller ever having to call FlushWAL/FlushMemtableToL0
// by hand, generalized from the teacher's spawnWALFlushTask and
// spawnMemtableFlushTask.
type flushScheduler struct {
	db *DB

	walNotify  chan context.Context
	immNotify  chan struct{}
	shutdownCh chan struct{}
	wg         sync.WaitGroup
}

func newFlushScheduler(db *DB) *flushScheduler {
	return &flushScheduler{
		db:         db,
		walNotify:  make(chan context.Context),
		immNotify:  make(chan struct{}, 1),
		shutdownCh: make(chan struct{}),
	}
}

func (s *flushScheduler) start() {
	s.wg.Add(2)
	go s.runWALFlush()
	go s.runMemtableFlush()
}

func (s *flushScheduler) stop() {
	close(s.shutdownCh)
	s.wg.Wait()
}

func (s *flushScheduler) runWALFlush() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.db.opts.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.db.opts.FlushInterval)
			if err := s.db.FlushWAL(ctx); err != nil {
				logger.Warn("flush wal failed", "error", err)
			}
			cancel()
		case ctx := <-s.walNotify:
			if err := s.db.FlushWAL(ctx); err != nil {
				logger.Warn("flush wal failed", "error", err)
			}
		case <-s.shutdownCh:
			return
		}
	}
}

// runMemtableFlush polls memList.ImmFlushNeeded (the advisory hint, no
// mutex required) on ManifestPollInterval and drives the
// pick-flush-install protocol whenever it is set, the same cadence the
// teacher's MemtableFlusher ticker uses against loadManifest/
// flushImmMemtablesToL0.
func (s *flushScheduler) runMemtableFlush() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.db.opts.ManifestPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.drainFlushes()
		case <-s.immNotify:
			s.drainFlushes()
		case <-s.shutdownCh:
			s.drainFlushes()
			return
		}
	}
}

func (s *flushScheduler) drainFlushes() {
	for s.db.memList.ImmFlushNeeded() {
		ctx, cancel := context.WithTimeout(context.Background(), s.db.opts.FlushInterval)
		err := s.db.FlushMemtableToL0(ctx)
		cancel()
		if err != nil {
			logger.Error("error flushing memtable", "error", err)
			return
		}
	}
}

// notifyImmFlush wakes the memtable flush goroutine immediately instead
// of waiting for the next poll tick, used after a caller-requested flush.
func (s *flushScheduler) notifyImmFlush() {
	select {
	case s.immNotify <- struct{}{}:
	default:
	}
}
