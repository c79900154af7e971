package natsjetstream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"sagaflow/logging"
	"sagaflow/messaging"
)

// Config configures the JetStream broker.
type Config struct {
	URL           string
	Stream        string
	SubjectPrefix string
	DurablePrefix string
	AckWait       time.Duration
	MaxAckPending int
	Logger        logging.Logger
	Conn          *nats.Conn

	// 可选：流参数
	Retention string // workqueue|limits|interest（默认 workqueue）
	MaxBytes  int64  // 0 表示不设置
	Replicas  int    // 0 表示默认
}

// Broker implements messaging.IBroker on top of NATS JetStream.
//
// 队列与任务映射为 subject：<prefix><queue>.<task>；发布返回
// "<stream>:<sequence>" 作为 broker 分配的消息ID。
type Broker struct {
	cfg      Config
	logger   logging.Logger
	conn     *nats.Conn
	js       nats.JetStreamContext
	ownsConn bool

	handlers map[string][]messaging.ITaskHandler
	subs     map[string]*nats.Subscription

	mu      sync.RWMutex
	running bool
}

// NewBroker builds a JetStream broker.
func NewBroker(cfg Config) *Broker {
	if cfg.Stream == "" {
		cfg.Stream = "SAGAFLOW"
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "saga."
	}
	if cfg.DurablePrefix == "" {
		cfg.DurablePrefix = "sagaflow-"
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = 30 * time.Second
	}
	if cfg.MaxAckPending <= 0 {
		cfg.MaxAckPending = 1024
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.GetLogger().WithFields(logging.String("component", "broker.nats"))
	}
	return &Broker{
		cfg:      cfg,
		logger:   cfg.Logger,
		handlers: make(map[string][]messaging.ITaskHandler),
		subs:     make(map[string]*nats.Subscription),
	}
}

// Publish writes one message into the queue's subject and returns the
// stream sequence as the broker-assigned message id.
func (b *Broker) Publish(ctx context.Context, queue string, message *messaging.Message) (string, error) {
	b.mu.RLock()
	js := b.js
	running := b.running
	b.mu.RUnlock()
	if !running || js == nil {
		return "", errors.New("nats broker not running")
	}

	body, err := message.EncodeBody()
	if err != nil {
		return "", err
	}

	subject := b.subjectName(queue, message.Task)
	ack, err := js.Publish(subject, body, nats.Context(ctx))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", ack.Stream, ack.Sequence), nil
}

// Subscribe registers a handler for a (queue, task) binding.
func (b *Broker) Subscribe(queue, task string, handler messaging.ITaskHandler) error {
	key := messaging.BindingKey(queue, task)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[key] = append(b.handlers[key], handler)
	if b.running {
		if err := b.subscribeLocked(queue, task); err != nil {
			return err
		}
	}
	return nil
}

// Unsubscribe removes the handler; the NATS subscription is drained once
// no handlers remain for the binding.
func (b *Broker) Unsubscribe(queue, task string, handler messaging.ITaskHandler) error {
	key := messaging.BindingKey(queue, task)
	b.mu.Lock()
	defer b.mu.Unlock()
	handlers := b.handlers[key]
	for i, h := range handlers {
		if h == handler {
			b.handlers[key] = append(handlers[:i], handlers[i+1:]...)
			break
		}
	}
	if len(b.handlers[key]) == 0 {
		delete(b.handlers, key)
		if sub, ok := b.subs[key]; ok {
			_ = sub.Drain()
			delete(b.subs, key)
		}
	}
	return nil
}

// Start connects, ensures the stream exists and binds pending subscriptions.
func (b *Broker) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return errors.New("nats broker already running")
	}
	if err := b.ensureConnection(); err != nil {
		return err
	}
	if err := b.ensureStream(); err != nil {
		return err
	}
	for key := range b.handlers {
		queue, task, ok := strings.Cut(key, "/")
		if !ok {
			continue
		}
		if err := b.subscribeLocked(queue, task); err != nil {
			return err
		}
	}
	b.running = true
	return nil
}

// Close drains subscriptions and closes the connection if owned.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.running {
		if b.ownsConn && b.conn != nil {
			b.conn.Close()
		}
		return nil
	}
	b.running = false
	for key, sub := range b.subs {
		_ = sub.Drain()
		delete(b.subs, key)
	}
	if b.ownsConn && b.conn != nil {
		b.conn.Close()
	}
	b.conn = nil
	b.js = nil
	return nil
}

// Stats returns basic binding information.
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

func (b *Broker) ensureConnection() error {
	if b.conn != nil && b.js != nil {
		return nil
	}
	if b.cfg.Conn != nil {
		b.conn = b.cfg.Conn
	} else {
		if b.cfg.URL == "" {
			b.cfg.URL = nats.DefaultURL
		}
		conn, err := nats.Connect(b.cfg.URL)
		if err != nil {
			return err
		}
		b.conn = conn
		b.ownsConn = true
	}
	js, err := b.conn.JetStream()
	if err != nil {
		return err
	}
	b.js = js
	return nil
}

func (b *Broker) ensureStream() error {
	_, err := b.js.StreamInfo(b.cfg.Stream)
	if err == nil {
		return nil
	}
	if !errors.Is(err, nats.ErrStreamNotFound) && !strings.Contains(err.Error(), "stream not found") {
		return err
	}
	// 组装流配置
	retention := nats.WorkQueuePolicy
	switch strings.ToLower(b.cfg.Retention) {
	case "limits":
		retention = nats.LimitsPolicy
	case "interest":
		retention = nats.InterestPolicy
	}
	sc := &nats.StreamConfig{
		Name:      b.cfg.Stream,
		Subjects:  []string{b.cfg.SubjectPrefix + ">"},
		Retention: retention,
	}
	if b.cfg.MaxBytes > 0 {
		sc.MaxBytes = b.cfg.MaxBytes
	}
	if b.cfg.Replicas > 0 {
		sc.Replicas = b.cfg.Replicas
	}
	_, err = b.js.AddStream(sc)
	return err
}

func (b *Broker) subscribeLocked(queue, task string) error {
	key := messaging.BindingKey(queue, task)
	if _, exists := b.subs[key]; exists {
		return nil
	}
	subject := b.subjectName(queue, task)
	durable := b.durableName(queue, task)
	sub, err := b.js.QueueSubscribe(subject, durable, b.handleMessage(queue, task),
		nats.ManualAck(),
		nats.Durable(durable),
		nats.AckWait(b.cfg.AckWait),
		nats.MaxAckPending(b.cfg.MaxAckPending))
	if err != nil {
		return err
	}
	b.subs[key] = sub
	return nil
}

func (b *Broker) handleMessage(queue, task string) nats.MsgHandler {
	return func(msg *nats.Msg) {
		ctx := context.Background()

		sagaID, payload, err := messaging.DecodeBody(msg.Data)
		if err != nil {
			// 无法解析的消息重投也无济于事，直接确认丢弃
			b.logger.Warn(ctx, "decode nats message failed",
				logging.String("subject", msg.Subject),
				logging.Error(err))
			_ = msg.Ack()
			return
		}

		delivery := &messaging.Delivery{
			Queue:   queue,
			Task:    task,
			SagaID:  sagaID,
			Payload: payload,
		}
		if meta, metaErr := msg.Metadata(); metaErr == nil {
			delivery.MessageID = fmt.Sprintf("%s:%d", meta.Stream, meta.Sequence.Stream)
			delivery.Timestamp = meta.Timestamp
		}

		if err := b.dispatch(ctx, delivery); err != nil {
			b.logger.Warn(ctx, "task handler failed, message will be redelivered",
				logging.String("subject", msg.Subject),
				logging.Int64("saga_id", sagaID),
				logging.Error(err))
			_ = msg.Nak()
			return
		}
		if err := msg.Ack(); err != nil {
			b.logger.Warn(ctx, "nats ack failed", logging.Error(err))
		}
	}
}

func (b *Broker) dispatch(ctx context.Context, delivery *messaging.Delivery) error {
	b.mu.RLock()
	exact := b.handlers[messaging.BindingKey(delivery.Queue, delivery.Task)]
	handlers := make([]messaging.ITaskHandler, len(exact))
	copy(handlers, exact)
	b.mu.RUnlock()

	var errs []error
	for _, h := range handlers {
		if err := h.Handle(ctx, delivery); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (b *Broker) subjectName(queue, task string) string {
	return b.cfg.SubjectPrefix + queue + "." + task
}

// durableName 生成合法的 durable/queue group 名（NATS 禁止 '.'）
func (b *Broker) durableName(queue, task string) string {
	name := b.cfg.DurablePrefix + queue + "-" + task
	return strings.NewReplacer(".", "-", "*", "_", ">", "_").Replace(name)
}
