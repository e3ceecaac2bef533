package notifier

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/txmonitor/internal/core/domain"
	"github.com/vietddude/txmonitor/internal/infra/storage/memory"
	"github.com/vietddude/txmonitor/internal/tracking/waiter"
)

type fakeQueue struct {
	mu        sync.Mutex
	published []*domain.RetryMessage
	onPublish func(msg *domain.RetryMessage)
}

func (q *fakeQueue) Publish(ctx context.Context, msg *domain.RetryMessage) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.published = append(q.published, msg)
	if q.onPublish != nil {
		q.onPublish(msg)
	}
	return nil
}

type fakeWaiter struct {
	started chan waiter.Request
}

func (w *fakeWaiter) Wait(ctx context.Context, req waiter.Request) {
	w.started <- req
}

func newTestNotifier(t *testing.T) (*Notifier, *memory.MemoryStorage, *fakeQueue, *fakeWaiter) {
	t.Helper()
	store := memory.NewMemoryStorage()
	queue := &fakeQueue{}
	fw := &fakeWaiter{started: make(chan waiter.Request, 1)}
	n := New(
		memory.NewAttemptRepo(store),
		memory.NewUserOpRepo(store),
		queue,
		fw,
		1,
		[]string{"relay-pool"},
	)
	return n, store, queue, fw
}

func awaitWait(t *testing.T, fw *fakeWaiter) waiter.Request {
	t.Helper()
	select {
	case req := <-fw.started:
		return req
	case <-time.After(2 * time.Second):
		t.Fatal("confirmation wait was never started")
		return waiter.Request{}
	}
}

func TestNotify_MissingTransactionID(t *testing.T) {
	n, _, queue, _ := newTestNotifier(t)

	if ok := n.Notify(context.Background(), domain.NotifyRequest{TransactionHash: "0xaa"}); ok {
		t.Error("expected Notify to reject a request without transaction id")
	}
	if len(queue.published) != 0 {
		t.Error("expected no retry message for rejected request")
	}
}

func TestNotify_RecordsAttemptAndPublishes(t *testing.T) {
	n, store, queue, fw := newTestNotifier(t)
	ctx := context.Background()

	ok := n.Notify(ctx, domain.NotifyRequest{
		TransactionID:      "tx-1",
		TransactionHash:    "0x0000000000000000000000000000000000000000000000000000000000000001",
		RelayerAddress:     "0xrelayer",
		WalletAddress:      "0xwallet",
		Kind:               domain.KindFunding,
		RelayerManagerName: "pool-a",
	})
	if !ok {
		t.Fatal("expected Notify to accept the request")
	}
	awaitWait(t, fw)

	attempts, err := memory.NewAttemptRepo(store).GetByTransactionID(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetByTransactionID failed: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("expected 1 attempt, got %d", len(attempts))
	}
	if attempts[0].Status != domain.AttemptPending {
		t.Errorf("expected PENDING attempt, got %s", attempts[0].Status)
	}

	if len(queue.published) != 1 {
		t.Fatalf("expected 1 retry message, got %d", len(queue.published))
	}
	msg := queue.published[0]
	if msg.TransactionID != "tx-1" || msg.RelayerManagerName != "pool-a" {
		t.Errorf("retry message carries wrong identity: %+v", msg)
	}
	if msg.MessageID == "" || msg.Timestamp == 0 {
		t.Error("retry message missing message id or timestamp")
	}
}

func TestNotify_NoHashDropsLineage(t *testing.T) {
	n, store, queue, _ := newTestNotifier(t)
	ctx := context.Background()
	repo := memory.NewAttemptRepo(store)
	ops := memory.NewUserOpRepo(store)

	// Seed an earlier broadcast and its user op.
	_ = repo.Save(ctx, &domain.TransactionAttempt{
		TransactionID:   "tx-2",
		TransactionHash: "0xaa",
		Kind:            domain.KindBundler,
		Status:          domain.AttemptPending,
	})
	_ = ops.Save(ctx, &domain.UserOpRecord{
		TransactionID: "tx-2",
		UserOpHash:    "0xop1",
		State:         domain.UserOpPendingProcessing,
	})
	_ = ops.Save(ctx, &domain.UserOpRecord{
		TransactionID: "tx-2",
		UserOpHash:    "0xop2",
		State:         domain.UserOpPendingProcessing,
	})

	ok := n.Notify(ctx, domain.NotifyRequest{
		TransactionID: "tx-2",
		Kind:          domain.KindBundler,
	})
	if ok {
		t.Error("expected Notify to report no monitoring for a hashless request")
	}
	if len(queue.published) != 0 {
		t.Error("expected no retry message for a hashless request")
	}

	attempts, _ := repo.GetByTransactionID(ctx, "tx-2")
	if attempts[0].Status != domain.AttemptDropped || !attempts[0].Resubmitted {
		t.Errorf("expected attempt DROPPED and resubmitted, got %s/%t",
			attempts[0].Status, attempts[0].Resubmitted)
	}
	recs, _ := ops.GetByTransactionID(ctx, "tx-2")
	if len(recs) != 2 {
		t.Fatalf("expected 2 user ops, got %d", len(recs))
	}
	for _, rec := range recs {
		if rec.State != domain.UserOpDropped {
			t.Errorf("expected user op %s DROPPED, got %s", rec.UserOpHash, rec.State)
		}
	}
}

func TestNotify_ReplacementDropsPreviousBeforePublish(t *testing.T) {
	n, store, queue, fw := newTestNotifier(t)
	ctx := context.Background()
	repo := memory.NewAttemptRepo(store)

	_ = repo.Save(ctx, &domain.TransactionAttempt{
		TransactionID:   "tx-3",
		TransactionHash: "0xold",
		Status:          domain.AttemptPending,
	})

	// At publish time the replaced row must already be DROPPED and the new
	// PENDING row must exist: a consumer may run the moment the message lands.
	var pendingAtPublish int
	queue.onPublish = func(msg *domain.RetryMessage) {
		attempts, _ := repo.GetByTransactionID(ctx, "tx-3")
		for _, a := range attempts {
			if a.Status == domain.AttemptPending {
				pendingAtPublish++
			}
		}
	}

	ok := n.Notify(ctx, domain.NotifyRequest{
		TransactionID:           "tx-3",
		TransactionHash:         "0xnew",
		PreviousTransactionHash: "0xold",
	})
	if !ok {
		t.Fatal("expected Notify to accept the replacement")
	}
	awaitWait(t, fw)

	if pendingAtPublish != 1 {
		t.Errorf("expected exactly 1 PENDING row at publish time, got %d", pendingAtPublish)
	}

	attempts, _ := repo.GetByTransactionID(ctx, "tx-3")
	byHash := map[string]*domain.TransactionAttempt{}
	for _, a := range attempts {
		byHash[a.TransactionHash] = a
	}
	if byHash["0xold"].Status != domain.AttemptDropped {
		t.Errorf("expected replaced attempt DROPPED, got %s", byHash["0xold"].Status)
	}
	if !byHash["0xold"].Resubmitted {
		t.Error("expected replaced attempt marked resubmitted")
	}
	if byHash["0xnew"].Status != domain.AttemptPending {
		t.Errorf("expected new attempt PENDING, got %s", byHash["0xnew"].Status)
	}
}

func TestNotify_RelayPoolSelectsPrivatePath(t *testing.T) {
	n, _, _, fw := newTestNotifier(t)

	n.Notify(context.Background(), domain.NotifyRequest{
		TransactionID:      "tx-4",
		TransactionHash:    "0xbb",
		RelayerManagerName: "relay-pool",
	})
	req := awaitWait(t, fw)
	if !req.UsePrivateRelay {
		t.Error("expected relay pool transaction to use the private path")
	}

	n.Notify(context.Background(), domain.NotifyRequest{
		TransactionID:      "tx-5",
		TransactionHash:    "0xcc",
		RelayerManagerName: "other-pool",
	})
	req = awaitWait(t, fw)
	if req.UsePrivateRelay {
		t.Error("expected non-relay pool transaction to use standard polling")
	}
}
