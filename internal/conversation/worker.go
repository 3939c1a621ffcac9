package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/apichafoko/RegistroCirugias-sub001/pkg/logging"
)

const (
	defaultWorkerCount   = 2
	defaultWaitSeconds   = 2
	defaultBatchSize     = 5
	maxWaitSeconds       = 20
	maxReceiveBatchSize  = 10
	deleteTimeoutSeconds = 5

	fallbackReply = "Perdón, tuve un problema técnico procesando tu mensaje. Probá de nuevo en un rato."
)

// Worker consumes inbound message jobs from the queue and invokes the
// engine, then pushes the replies back through the messenger. A single
// receiver goroutine pulls from the queue and routes each job to a
// consumer by conversation, so one conversation's turns are applied in
// arrival order no matter how many consumers run.
type Worker struct {
	processor Service
	queue     queueClient
	messenger ReplyMessenger
	logger    *logging.Logger

	cfg workerConfig
	wg  sync.WaitGroup
}

type workerConfig struct {
	workers          int
	receiveWaitSecs  int
	receiveBatchSize int
}

// WorkerOption customizes worker behavior.
type WorkerOption func(*workerConfig)

// WithWorkerCount sets the number of consumer goroutines. Jobs are routed
// to consumers by conversation, so raising the count never reorders a
// single conversation.
func WithWorkerCount(count int) WorkerOption {
	return func(cfg *workerConfig) {
		if count > 0 {
			cfg.workers = count
		}
	}
}

// WithReceiveWaitSeconds sets the SQS long-poll wait duration.
func WithReceiveWaitSeconds(seconds int) WorkerOption {
	return func(cfg *workerConfig) {
		if seconds < 0 {
			return
		}
		if seconds > maxWaitSeconds {
			seconds = maxWaitSeconds
		}
		cfg.receiveWaitSecs = seconds
	}
}

// WithReceiveBatchSize sets how many messages to fetch per poll.
func WithReceiveBatchSize(size int) WorkerOption {
	return func(cfg *workerConfig) {
		if size <= 0 {
			return
		}
		if size > maxReceiveBatchSize {
			size = maxReceiveBatchSize
		}
		cfg.receiveBatchSize = size
	}
}

// NewWorker constructs a queue consumer around the provided processor. The
// messenger may be nil, in which case replies are only logged.
func NewWorker(processor Service, queue queueClient, messenger ReplyMessenger, logger *logging.Logger, opts ...WorkerOption) *Worker {
	if processor == nil {
		panic("conversation: processor cannot be nil")
	}
	if queue == nil {
		panic("conversation: queue cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	cfg := workerConfig{
		workers:          defaultWorkerCount,
		receiveWaitSecs:  defaultWaitSeconds,
		receiveBatchSize: defaultBatchSize,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return &Worker{
		processor: processor,
		queue:     queue,
		messenger: messenger,
		logger:    logger,
		cfg:       cfg,
	}
}

// Start launches the receiver and consumer goroutines until ctx is
// cancelled.
func (w *Worker) Start(ctx context.Context) {
	channels := make([]chan queueMessage, w.cfg.workers)
	for i := range channels {
		channels[i] = make(chan queueMessage, maxReceiveBatchSize)
	}

	for i, ch := range channels {
		w.wg.Add(1)
		go w.consume(ctx, i+1, ch)
	}
	w.wg.Add(1)
	go w.receive(ctx, channels)
}

// Wait blocks until all worker goroutines exit.
func (w *Worker) Wait() {
	w.wg.Wait()
}

// receive polls the queue and routes each job to its conversation's
// consumer channel. Closing the channels on exit releases the consumers.
func (w *Worker) receive(ctx context.Context, channels []chan queueMessage) {
	defer w.wg.Done()
	defer func() {
		for _, ch := range channels {
			close(ch)
		}
	}()

	w.logger.Debug("conversation receiver started", "consumers", len(channels))
	backoff := time.Second

	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("conversation receiver stopping")
			return
		default:
		}

		messages, err := w.queue.Receive(ctx, w.cfg.receiveBatchSize, w.cfg.receiveWaitSecs)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			w.logger.Error("failed to receive conversation jobs", "error", err)
			time.Sleep(backoff)
			if backoff < 5*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		for _, msg := range messages {
			select {
			case channels[w.route(msg, len(channels))] <- msg:
			case <-ctx.Done():
				return
			}
		}
	}
}

// route pins all jobs of one conversation to the same consumer. Jobs whose
// payload cannot be read go to the first consumer, which discards them.
func (w *Worker) route(msg queueMessage, consumers int) int {
	if consumers == 1 {
		return 0
	}
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil || payload.Message.ConversationID == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(payload.Message.ConversationID))
	return int(h.Sum32() % uint32(consumers))
}

func (w *Worker) consume(ctx context.Context, workerID int, jobs <-chan queueMessage) {
	defer w.wg.Done()
	w.logger.Debug("conversation worker started", "worker_id", workerID)

	for msg := range jobs {
		// Jobs still buffered at shutdown are left for redelivery.
		if ctx.Err() != nil {
			continue
		}
		w.handleMessage(ctx, msg)
	}
	w.logger.Debug("conversation worker stopping", "worker_id", workerID)
}

func (w *Worker) handleMessage(ctx context.Context, msg queueMessage) {
	var payload queuePayload
	if err := json.Unmarshal([]byte(msg.Body), &payload); err != nil {
		w.logger.Error("failed to decode conversation job", "error", err)
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	if payload.Kind != jobTypeMessage {
		w.logger.Warn("skipping unknown job kind", "job_id", payload.ID, "kind", string(payload.Kind))
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	req := payload.Message
	resp, err := w.processor.ProcessMessage(ctx, req)
	if err != nil {
		w.logger.Error("failed to process message",
			"job_id", payload.ID, "conversation_id", req.ConversationID, "error", err)
		w.sendReply(ctx, req, Reply{Text: fallbackReply})
		w.deleteMessage(msg.ReceiptHandle)
		return
	}

	for _, reply := range resp.Replies {
		w.sendReply(ctx, req, reply)
	}

	w.logger.Info("conversation job processed",
		"job_id", payload.ID,
		"conversation_id", req.ConversationID,
		"replies", len(resp.Replies),
		"confirmed", resp.Confirmed,
	)

	w.deleteMessage(msg.ReceiptHandle)
}

func (w *Worker) sendReply(ctx context.Context, req MessageRequest, reply Reply) {
	if w.messenger == nil {
		w.logger.Debug("no messenger configured, dropping reply",
			"conversation_id", req.ConversationID, "body", reply.Text)
		return
	}

	out := OutboundReply{
		OrgID:          req.OrgID,
		ConversationID: req.ConversationID,
		To:             req.From,
		From:           req.To,
		Body:           reply.Text,
		Options:        reply.Options,
		Metadata:       req.Metadata,
	}
	if err := w.messenger.SendReply(ctx, out); err != nil {
		w.logger.Error("failed to send reply",
			"conversation_id", req.ConversationID, "error", err)
	}
}

func (w *Worker) deleteMessage(receiptHandle string) {
	if receiptHandle == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), deleteTimeoutSeconds*time.Second)
	defer cancel()

	if err := w.queue.Delete(ctx, receiptHandle); err != nil {
		w.logger.Error("failed to delete conversation job", "error", err)
	}
}
