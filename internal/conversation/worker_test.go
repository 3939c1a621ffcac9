package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/apichafoko/RegistroCirugias-sub001/pkg/logging"
)

type recordingService struct {
	mu       sync.Mutex
	requests []MessageRequest
	response *Response
	err      error
}

func (s *recordingService) ProcessMessage(_ context.Context, req MessageRequest) (*Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if s.err != nil {
		return nil, s.err
	}
	if s.response != nil {
		return s.response, nil
	}
	return &Response{ConversationID: req.ConversationID, Replies: []Reply{{Text: "ok"}}}, nil
}

func (s *recordingService) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type recordingMessenger struct {
	mu      sync.Mutex
	replies []OutboundReply
}

func (m *recordingMessenger) SendReply(_ context.Context, reply OutboundReply) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replies = append(m.replies, reply)
	return nil
}

func (m *recordingMessenger) sent() []OutboundReply {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]OutboundReply, len(m.replies))
	copy(out, m.replies)
	return out
}

func waitFor(cond func() bool, timeout time.Duration, t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestWorkerProcessesMessageJobs(t *testing.T) {
	queue := NewMemoryQueue(8)
	service := &recordingService{}
	messenger := &recordingMessenger{}
	worker := NewWorker(service, queue, messenger, logging.Default(),
		WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	payload := queuePayload{
		ID:   "job-1",
		Kind: jobTypeMessage,
		Message: MessageRequest{
			OrgID:          "org-1",
			ConversationID: "conv-1",
			From:           "+5491100000001",
			To:             "+5491100000002",
			Text:           "2 CERS mañana",
		},
	}
	body, _ := json.Marshal(payload)
	if err := queue.Send(ctx, string(body), "conv-1"); err != nil {
		t.Fatalf("send: %v", err)
	}

	waitFor(func() bool { return service.callCount() > 0 }, time.Second, t)
	waitFor(func() bool { return len(messenger.sent()) > 0 }, time.Second, t)

	cancel()
	worker.Wait()

	if service.callCount() != 1 {
		t.Fatalf("expected 1 process call, got %d", service.callCount())
	}

	replies := messenger.sent()
	if len(replies) != 1 {
		t.Fatalf("expected 1 outbound reply, got %d", len(replies))
	}
	if replies[0].To != "+5491100000001" || replies[0].From != "+5491100000002" {
		t.Fatalf("reply addressing swapped incorrectly: %+v", replies[0])
	}
	if replies[0].Body != "ok" {
		t.Fatalf("unexpected reply body %q", replies[0].Body)
	}
}

func TestWorkerKeepsPerConversationOrder(t *testing.T) {
	queue := NewMemoryQueue(64)
	service := &recordingService{}
	messenger := &recordingMessenger{}
	worker := NewWorker(service, queue, messenger, logging.Default(),
		WithWorkerCount(4), WithReceiveBatchSize(10), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	const perConversation = 15
	conversations := []string{"conv-a", "conv-b", "conv-c"}
	for i := 0; i < perConversation; i++ {
		for _, conv := range conversations {
			body, _ := json.Marshal(queuePayload{
				ID:   fmt.Sprintf("%s-%d", conv, i),
				Kind: jobTypeMessage,
				Message: MessageRequest{
					ConversationID: conv,
					From:           "+549110000000",
					Text:           fmt.Sprintf("turno %d", i),
				},
			})
			if err := queue.Send(ctx, string(body), conv); err != nil {
				t.Fatalf("send: %v", err)
			}
		}
	}

	total := perConversation * len(conversations)
	waitFor(func() bool { return service.callCount() == total }, 5*time.Second, t)

	cancel()
	worker.Wait()

	service.mu.Lock()
	defer service.mu.Unlock()
	seen := make(map[string]int)
	for _, req := range service.requests {
		want := fmt.Sprintf("turno %d", seen[req.ConversationID])
		if req.Text != want {
			t.Fatalf("conversation %s processed %q before %q", req.ConversationID, req.Text, want)
		}
		seen[req.ConversationID]++
	}
	for _, conv := range conversations {
		if seen[conv] != perConversation {
			t.Fatalf("conversation %s processed %d messages, want %d", conv, seen[conv], perConversation)
		}
	}
}

func TestWorkerSendsFallbackOnProcessingError(t *testing.T) {
	queue := NewMemoryQueue(8)
	service := &recordingService{err: context.DeadlineExceeded}
	messenger := &recordingMessenger{}
	worker := NewWorker(service, queue, messenger, logging.Default(),
		WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	payload := queuePayload{
		ID:      "job-1",
		Kind:    jobTypeMessage,
		Message: MessageRequest{ConversationID: "conv-1", From: "+549110000000"},
	}
	body, _ := json.Marshal(payload)
	_ = queue.Send(ctx, string(body), "conv-1")

	waitFor(func() bool { return len(messenger.sent()) > 0 }, time.Second, t)

	cancel()
	worker.Wait()

	replies := messenger.sent()
	if replies[0].Body != fallbackReply {
		t.Fatalf("expected fallback reply, got %q", replies[0].Body)
	}
}

func TestWorkerSkipsMalformedAndUnknownJobs(t *testing.T) {
	queue := NewMemoryQueue(8)
	service := &recordingService{}
	worker := NewWorker(service, queue, nil, logging.Default(),
		WithWorkerCount(1), WithReceiveBatchSize(1), WithReceiveWaitSeconds(0))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	worker.Start(ctx)

	_ = queue.Send(ctx, "{not json", "")
	body, _ := json.Marshal(queuePayload{ID: "job-2", Kind: jobType("payment")})
	_ = queue.Send(ctx, string(body), "conv-1")

	good, _ := json.Marshal(queuePayload{
		ID:      "job-3",
		Kind:    jobTypeMessage,
		Message: MessageRequest{ConversationID: "conv-1"},
	})
	_ = queue.Send(ctx, string(good), "conv-1")

	waitFor(func() bool { return service.callCount() > 0 }, time.Second, t)

	cancel()
	worker.Wait()

	if service.callCount() != 1 {
		t.Fatalf("expected only the valid job to be processed, got %d calls", service.callCount())
	}
}
