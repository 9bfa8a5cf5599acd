package ccts

import (
	"fmt"
	"sync"
	"time"

	"github.com/Klingon-tech/klingnet-ccts/internal/log"
)

// EventBridge is the concrete MaturedBlockReceiver: it gates delivery of
// matured-deposit batches to the store by height. A batch only flushes
// once its block_height equals the store's current
// NextMatureDepositHeight; anything that arrives out of order or ahead of
// the cursor is held until the gap fills, and the bridge rate-limits a
// resend request for whatever height it's still waiting on to once per
// resendInterval.
type EventBridge struct {
	store          *Store
	resendInterval time.Duration

	mu            sync.Mutex
	pending       map[int32]MaturedBlockDeposits
	lastResendLog map[int32]time.Time
}

// NewEventBridge creates a bridge delivering into store, asking for a
// resend of a held height at most once per resendInterval.
func NewEventBridge(store *Store, resendInterval time.Duration) *EventBridge {
	return &EventBridge{
		store:          store,
		resendInterval: resendInterval,
		pending:        make(map[int32]MaturedBlockDeposits),
		lastResendLog:  make(map[int32]time.Time),
	}
}

// Notify queues one or more matured-block batches and immediately flushes
// whatever prefix of them the store's cursor is ready to accept.
func (b *EventBridge) Notify(blocks ...MaturedBlockDeposits) error {
	b.mu.Lock()
	for _, blk := range blocks {
		b.pending[blk.BlockHeight] = blk
	}
	b.mu.Unlock()

	return b.flush()
}

// OnMaturedBlock implements MaturedBlockReceiver by queuing blk through
// Notify.
func (b *EventBridge) OnMaturedBlock(blk MaturedBlockDeposits) error {
	return b.Notify(blk)
}

// flush delivers every contiguous held batch starting at the store's
// current cursor, one block at a time so the cursor and the pending set
// never disagree after a partial failure. It stops at the first gap and
// logs a rate-limited resend request for the height it's still waiting on.
func (b *EventBridge) flush() error {
	for {
		cursor, err := b.store.NextMatureDepositHeight()
		if err != nil {
			return fmt.Errorf("event bridge: %w", err)
		}

		b.mu.Lock()
		blk, ready := b.pending[cursor]
		b.mu.Unlock()
		if !ready {
			b.requestResend(cursor)
			return nil
		}

		if err := b.store.RecordLatestMatureDeposits([]MaturedBlockDeposits{blk}); err != nil {
			log.Store.Error().Err(err).Int32("height", cursor).Msg("matured deposit ingestion failed")
			return err
		}

		b.mu.Lock()
		delete(b.pending, cursor)
		delete(b.lastResendLog, cursor)
		b.mu.Unlock()
	}
}

// requestResend logs that the bridge is still waiting on height, at most
// once per resendInterval, standing in for an explicit resend ask to
// whatever external source is delivering batches out of order.
func (b *EventBridge) requestResend(height int32) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if time.Since(b.lastResendLog[height]) < b.resendInterval {
		return
	}
	b.lastResendLog[height] = time.Now()
	log.Store.Warn().Int32("awaiting_height", height).Msg("event bridge holding out-of-order batch, requesting resend")
}

// RunLoop periodically retries the held queue even when no new Notify call
// arrives, so a batch that was delivered out of order eventually flushes
// once the missing height shows up through some other path. Stops when
// done is closed.
func (b *EventBridge) RunLoop(done <-chan struct{}) {
	ticker := time.NewTicker(b.resendInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := b.flush(); err != nil {
				log.Store.Warn().Err(err).Msg("event bridge periodic flush failed")
			}
		}
	}
}
