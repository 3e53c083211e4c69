package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/juju/clock"

	"github.com/kirillkom/civic-records/internal/core/ports"
)

const defaultDispatchTimeout = 3 * time.Second

// AsyncNotifier hands issued documents to the anchoring worker over the
// message queue. Dispatch runs in the background under a timeout; a failed
// publish lands in the outbox instead.
type AsyncNotifier struct {
	queue   ports.MessageQueue
	outbox  ports.AnchorOutbox
	clock   clock.Clock
	timeout time.Duration

	wg sync.WaitGroup
}

func NewAsyncNotifier(queue ports.MessageQueue, outbox ports.AnchorOutbox, clk clock.Clock, timeout time.Duration) *AsyncNotifier {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	if clk == nil {
		clk = clock.WallClock
	}
	return &AsyncNotifier{queue: queue, outbox: outbox, clock: clk, timeout: timeout}
}

func (n *AsyncNotifier) DocumentIssued(ctx context.Context, documentID string) {
	base := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		pubCtx, cancel := context.WithTimeout(base, n.timeout)
		defer cancel()

		err := n.queue.PublishDocumentIssued(pubCtx, documentID)
		if err == nil {
			return
		}
		slog.Warn("ledger_dispatch_failed", "document_id", documentID, "error", err)
		if qErr := n.outbox.Enqueue(base, documentID, err.Error(), n.clock.Now()); qErr != nil {
			slog.Error("ledger_outbox_enqueue_failed", "document_id", documentID, "error", qErr)
		}
	}()
}

// Wait blocks until every dispatch started so far has finished.
func (n *AsyncNotifier) Wait() {
	n.wg.Wait()
}

// DirectNotifier anchors in-process when no message queue is configured.
// Anchor failures are already kept in the outbox by the anchorer.
type DirectNotifier struct {
	anchorer ports.DocumentAnchorer
	timeout  time.Duration

	wg sync.WaitGroup
}

func NewDirectNotifier(anchorer ports.DocumentAnchorer, timeout time.Duration) *DirectNotifier {
	if timeout <= 0 {
		timeout = defaultDispatchTimeout
	}
	return &DirectNotifier{anchorer: anchorer, timeout: timeout}
}

func (n *DirectNotifier) DocumentIssued(ctx context.Context, documentID string) {
	base := context.WithoutCancel(ctx)
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		anchorCtx, cancel := context.WithTimeout(base, n.timeout)
		defer cancel()
		if err := n.anchorer.AnchorByID(anchorCtx, documentID); err != nil {
			slog.Warn("ledger_direct_anchor_failed", "document_id", documentID, "error", err)
		}
	}()
}

func (n *DirectNotifier) Wait() {
	n.wg.Wait()
}
