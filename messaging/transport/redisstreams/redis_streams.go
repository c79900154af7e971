package redisstreams

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"sagaflow/logging"
	"sagaflow/messaging"
)

// Config configures the Redis Streams broker.
type Config struct {
	Addr         string
	Password     string
	DB           int
	StreamPrefix string
	Group        string
	BlockTime    time.Duration
	BatchSize    int64
	Logger       logging.Logger
	Client       *redis.Client
}

// Broker implements messaging.IBroker on Redis Streams.
//
// Each queue maps to one stream (<prefix><queue>) consumed through a
// consumer group, so multiple processes sharing a queue split the load.
// XAdd's generated entry id is returned as the broker message id.
type Broker struct {
	cfg        Config
	logger     logging.Logger
	client     *redis.Client
	ownsClient bool

	handlers map[string][]messaging.ITaskHandler
	readers  map[string]context.CancelFunc

	mu      sync.RWMutex
	wg      sync.WaitGroup
	running bool
}

// NewBroker builds a Redis Streams broker.
func NewBroker(cfg Config) *Broker {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.StreamPrefix == "" {
		cfg.StreamPrefix = "saga:"
	}
	if cfg.Group == "" {
		cfg.Group = "sagaflow"
	}
	if cfg.BlockTime <= 0 {
		cfg.BlockTime = 2 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 16
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "broker.redis"))
	}
	return &Broker{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: make(map[string][]messaging.ITaskHandler),
		readers:  make(map[string]context.CancelFunc),
	}
}

// Publish appends the message to the queue's stream.
func (b *Broker) Publish(ctx context.Context, queue string, message *messaging.Message) (string, error) {
	b.mu.RLock()
	client := b.client
	running := b.running
	b.mu.RUnlock()
	if !running || client == nil {
		return "", errors.New("redis broker not running")
	}

	body, err := message.EncodeBody()
	if err != nil {
		return "", err
	}

	id, err := client.XAdd(ctx, &redis.XAddArgs{
		Stream: b.streamName(queue),
		Values: map[string]any{
			"task":      message.Task,
			"body":      string(body),
			"timestamp": message.Timestamp.UnixMilli(),
		},
	}).Result()
	if err != nil {
		return "", err
	}
	return id, nil
}

// Subscribe registers a handler; the queue's reader goroutine is started
// lazily once the broker is running.
func (b *Broker) Subscribe(queue, task string, handler messaging.ITaskHandler) error {
	key := messaging.BindingKey(queue, task)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[key] = append(b.handlers[key], handler)
	if b.running {
		return b.startReaderLocked(queue)
	}
	return nil
}

// Unsubscribe removes a handler; the reader keeps running until Close so
// in-flight entries are still acknowledged.
func (b *Broker) Unsubscribe(queue, task string, handler messaging.ITaskHandler) error {
	key := messaging.BindingKey(queue, task)
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers, ok := b.handlers[key]
	if !ok {
		return errors.New("no handlers for " + key)
	}
	for i, h := range handlers {
		if h == handler {
			b.handlers[key] = append(handlers[:i], handlers[i+1:]...)
			if len(b.handlers[key]) == 0 {
				delete(b.handlers, key)
			}
			return nil
		}
	}
	return errors.New("handler not found for " + key)
}

// Start connects and spawns one reader per subscribed queue.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("redis broker already running")
	}

	if b.cfg.Client != nil {
		b.client = b.cfg.Client
	} else {
		b.client = redis.NewClient(&redis.Options{
			Addr:     b.cfg.Addr,
			Password: b.cfg.Password,
			DB:       b.cfg.DB,
		})
		b.ownsClient = true
	}
	if err := b.client.Ping(ctx).Err(); err != nil {
		if b.ownsClient {
			_ = b.client.Close()
			b.client = nil
		}
		return err
	}

	b.running = true
	for queue := range b.queuesLocked() {
		if err := b.startReaderLocked(queue); err != nil {
			b.running = false
			return err
		}
	}
	return nil
}

// Close stops all readers and closes the client if owned.
func (b *Broker) Close() error {
	b.mu.Lock()
	if !b.running {
		b.mu.Unlock()
		return errors.New("redis broker is not running")
	}
	b.running = false
	for queue, cancel := range b.readers {
		cancel()
		delete(b.readers, queue)
	}
	client := b.client
	owns := b.ownsClient
	b.client = nil
	b.mu.Unlock()

	b.wg.Wait()
	if owns && client != nil {
		return client.Close()
	}
	return nil
}

// Stats returns binding information.
func (b *Broker) Stats() messaging.BrokerStats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlerCount := 0
	bindings := make([]string, 0, len(b.handlers))
	for key, hs := range b.handlers {
		handlerCount += len(hs)
		bindings = append(bindings, key)
	}
	return messaging.BrokerStats{
		Running:      b.running,
		HandlerCount: handlerCount,
		Bindings:     bindings,
	}
}

func (b *Broker) queuesLocked() map[string]struct{} {
	queues := make(map[string]struct{})
	for key := range b.handlers {
		if queue, _, ok := strings.Cut(key, "/"); ok {
			queues[queue] = struct{}{}
		}
	}
	return queues
}

func (b *Broker) startReaderLocked(queue string) error {
	if _, exists := b.readers[queue]; exists {
		return nil
	}

	stream := b.streamName(queue)
	err := b.client.XGroupCreateMkStream(context.Background(), stream, b.cfg.Group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return err
	}

	readCtx, cancel := context.WithCancel(context.Background())
	b.readers[queue] = cancel

	consumer := b.cfg.Group + "-" + uuid.NewString()
	b.wg.Add(1)
	go b.readLoop(readCtx, queue, stream, consumer)
	return nil
}

// readLoop blocks on XReadGroup and dispatches entries until cancelled.
func (b *Broker) readLoop(ctx context.Context, queue, stream, consumer string) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		b.mu.RLock()
		client := b.client
		b.mu.RUnlock()
		if client == nil {
			return
		}

		streams, err := client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    b.cfg.Group,
			Consumer: consumer,
			Streams:  []string{stream, ">"},
			Count:    b.cfg.BatchSize,
			Block:    b.cfg.BlockTime,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			b.logger.Warn(ctx, "xreadgroup failed",
				logging.String("stream", stream),
				logging.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		for _, s := range streams {
			for _, entry := range s.Messages {
				b.handleEntry(ctx, queue, stream, entry)
			}
		}
	}
}

func (b *Broker) handleEntry(ctx context.Context, queue, stream string, entry redis.XMessage) {
	task, _ := entry.Values["task"].(string)
	rawBody, _ := entry.Values["body"].(string)

	sagaID, payload, err := messaging.DecodeBody([]byte(rawBody))
	if err != nil {
		// A malformed entry never becomes readable, ack and drop.
		b.logger.Warn(ctx, "decode stream entry failed",
			logging.String("stream", stream),
			logging.String("entry_id", entry.ID),
			logging.Error(err))
		b.ack(ctx, stream, entry.ID)
		return
	}

	delivery := &messaging.Delivery{
		MessageID: entry.ID,
		Queue:     queue,
		Task:      task,
		SagaID:    sagaID,
		Payload:   payload,
	}
	if raw, ok := entry.Values["timestamp"].(string); ok {
		if ms, perr := strconv.ParseInt(raw, 10, 64); perr == nil {
			delivery.Timestamp = time.UnixMilli(ms)
		}
	}

	b.mu.RLock()
	exact := b.handlers[messaging.BindingKey(queue, task)]
	wildcard := b.handlers[messaging.BindingKey(queue, "*")]
	handlers := make([]messaging.ITaskHandler, 0, len(exact)+len(wildcard))
	handlers = append(handlers, exact...)
	handlers = append(handlers, wildcard...)
	b.mu.RUnlock()

	failed := false
	for _, h := range handlers {
		if err := h.Handle(ctx, delivery); err != nil {
			failed = true
			b.logger.Warn(ctx, "task handler failed",
				logging.String("stream", stream),
				logging.String("task", task),
				logging.Int64("saga_id", sagaID),
				logging.Error(err))
		}
	}
	if failed {
		// Leave the entry pending so XAUTOCLAIM/redelivery can retry it.
		return
	}
	b.ack(ctx, stream, entry.ID)
}

func (b *Broker) ack(ctx context.Context, stream, entryID string) {
	b.mu.RLock()
	client := b.client
	b.mu.RUnlock()
	if client == nil {
		return
	}
	if err := client.XAck(ctx, stream, b.cfg.Group, entryID).Err(); err != nil && ctx.Err() == nil {
		b.logger.Warn(ctx, "xack failed",
			logging.String("stream", stream),
			logging.String("entry_id", entryID),
			logging.Error(err))
	}
}

func (b *Broker) streamName(queue string) string {
	return b.cfg.StreamPrefix + queue
}
