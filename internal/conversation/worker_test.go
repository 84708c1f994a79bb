package conversation

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

type recordingHandler struct {
	mu   sync.Mutex
	got  []InboundMessage
	err  error
	done chan struct{}
}

func (h *recordingHandler) Handle(_ context.Context, in InboundMessage) error {
	h.mu.Lock()
	h.got = append(h.got, in)
	h.mu.Unlock()
	if h.done != nil {
		h.done <- struct{}{}
	}
	return h.err
}

func TestWorkerProcessesQueuedInbound(t *testing.T) {
	queue := NewMemoryQueue(4)
	handler := &recordingHandler{done: make(chan struct{}, 2)}
	publisher := NewPublisher(queue, quietLogger())
	worker := NewWorker(handler, queue, quietLogger(), WithReceiveWaitSeconds(1))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	for _, body := range []string{"hi", "Bob's Plumbing"} {
		if _, err := publisher.EnqueueInbound(ctx, InboundMessage{Provider: "twilio", From: testPhone, To: testCarrier, Body: body}); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}
	for i := 0; i < 2; i++ {
		select {
		case <-handler.done:
		case <-time.After(3 * time.Second):
			t.Fatalf("timed out waiting for job %d", i)
		}
	}
	cancel()
	worker.Wait()

	handler.mu.Lock()
	defer handler.mu.Unlock()
	if handler.got[0].Body != "hi" || handler.got[1].Body != "Bob's Plumbing" {
		t.Fatalf("jobs processed out of order: %+v", handler.got)
	}
}

func TestWorkerDeletesFailedAndMalformedJobs(t *testing.T) {
	queue := &stubQueue{}
	handler := &recordingHandler{err: errors.New("boom")}
	worker := NewWorker(handler, queue, quietLogger())

	_, body, err := encodePayload(queuePayload{Kind: jobTypeInbound, Inbound: &InboundMessage{From: testPhone, Body: "hi"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	worker.handleMessage(context.Background(), queueMessage{ID: "1", Body: body, ReceiptHandle: "r1"})
	worker.handleMessage(context.Background(), queueMessage{ID: "2", Body: "{not json", ReceiptHandle: "r2"})
	worker.handleMessage(context.Background(), queueMessage{ID: "3", Body: `{"kind":"mystery"}`, ReceiptHandle: "r3"})

	if len(handler.got) != 1 {
		t.Fatalf("expected handler to run once, got %d", len(handler.got))
	}
	if len(queue.deleted) != 3 {
		t.Fatalf("all jobs should be deleted, got %v", queue.deleted)
	}
}

func TestWorkerOptionsClamp(t *testing.T) {
	w := NewWorker(&recordingHandler{}, &stubQueue{}, nil,
		WithWorkerCount(0),
		WithReceiveWaitSeconds(90),
		WithReceiveBatchSize(50),
	)
	if w.cfg.workers != defaultWorkerCount {
		t.Fatalf("expected default worker count, got %d", w.cfg.workers)
	}
	if w.cfg.receiveWaitSecs != maxWaitSeconds || w.cfg.receiveBatchSize != maxReceiveBatchSize {
		t.Fatalf("options not clamped: %+v", w.cfg)
	}
}

func TestMemoryQueueReceive(t *testing.T) {
	q := NewMemoryQueue(4)
	start := time.Now()
	msgs, err := q.Receive(context.Background(), 5, 1)
	if err != nil || len(msgs) != 0 {
		t.Fatalf("expected empty receive, got %v %v", msgs, err)
	}
	if time.Since(start) < 900*time.Millisecond {
		t.Fatalf("receive returned before the wait elapsed")
	}

	for _, body := range []string{"a", "b", "c"} {
		if err := q.Send(context.Background(), body); err != nil {
			t.Fatalf("send: %v", err)
		}
	}
	msgs, err = q.Receive(context.Background(), 2, 1)
	if err != nil || len(msgs) != 2 || msgs[0].Body != "a" || msgs[1].Body != "b" {
		t.Fatalf("expected first two messages, got %+v %v", msgs, err)
	}
}
