package xrelay

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/omeyang/xsched/pkg/event/xemit"
	"github.com/omeyang/xsched/pkg/sched/xinterval"
)

//go:generate mockgen -source=relay.go -destination=publisher_mock_test.go -package=xrelay

// 转发相关错误。
var (
	// ErrNilClient 表示 Redis 客户端为 nil。
	ErrNilClient = errors.New("xrelay: redis client cannot be nil")

	// ErrNilScheduler 表示要挂接的调度器为 nil。
	ErrNilScheduler = errors.New("xrelay: scheduler cannot be nil")

	// ErrClosed 表示转发器已关闭。
	ErrClosed = errors.New("xrelay: relay is closed")
)

// Publisher Redis 发布能力的最小抽象。
// redis.UniversalClient 天然满足该接口。
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

var _ Publisher = (redis.UniversalClient)(nil)

// Envelope 发布到 Redis 频道的事件信封。
type Envelope struct {
	// Name 调度器实例名。
	Name string `json:"name"`
	// Topic 事件主题：error/stop/timeout。
	Topic string `json:"topic"`
	// Time 事件发布时间。
	Time time.Time `json:"time"`
	// Payload 主题相关载荷。error 主题为错误文本，
	// timeout 主题为失速详情，stop 主题为空。
	Payload any `json:"payload,omitempty"`
}

// relayOptions 转发器配置。
type relayOptions struct {
	prefix  string
	timeout time.Duration
	logger  *slog.Logger
}

func defaultRelayOptions() *relayOptions {
	return &relayOptions{
		prefix:  "xsched:",
		timeout: 3 * time.Second,
	}
}

// Option 转发器配置选项。
type Option func(*relayOptions)

// WithChannelPrefix 设置发布频道前缀，默认 "xsched:"。
func WithChannelPrefix(prefix string) Option {
	return func(o *relayOptions) {
		o.prefix = prefix
	}
}

// WithPublishTimeout 设置单次发布的超时，默认 3s。
func WithPublishTimeout(d time.Duration) Option {
	return func(o *relayOptions) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger 设置日志记录器，默认 slog.Default()。
func WithLogger(logger *slog.Logger) Option {
	return func(o *relayOptions) {
		o.logger = logger
	}
}

// Relay 调度器事件转发器。一个转发器可挂接多个调度器，
// 共享同一 Redis 客户端与频道前缀。
type Relay struct {
	client Publisher
	opts   *relayOptions

	mu      sync.Mutex
	cancels map[uint64]func()
	nextID  uint64
	closed  bool
}

// New 创建事件转发器。client 的所有权归调用方，Close 不会关闭它。
func New(client Publisher, opts ...Option) (*Relay, error) {
	if client == nil {
		return nil, ErrNilClient
	}

	options := defaultRelayOptions()
	for _, opt := range opts {
		opt(options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	return &Relay{
		client:  client,
		opts:    options,
		cancels: make(map[uint64]func()),
	}, nil
}

// Channel 返回主题对应的 Redis 频道名。
func (r *Relay) Channel(topic xemit.Topic) string {
	return r.opts.prefix + string(topic)
}

// Attach 挂接调度器：订阅其全部主题并开始转发。
// 返回的 detach 函数解除挂接，幂等。Close 会解除所有挂接。
func (r *Relay) Attach(s *xinterval.Scheduler) (detach func(), err error) {
	if s == nil {
		return nil, ErrNilScheduler
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrClosed
	}
	r.nextID++
	id := r.nextID
	r.mu.Unlock()

	name := s.Name()
	topics := []xemit.Topic{xemit.TopicError, xemit.TopicStop, xemit.TopicTimeout}
	cancels := make([]func(), 0, len(topics))
	for _, topic := range topics {
		cancels = append(cancels, s.On(topic, func(e xemit.Event) {
			r.publish(name, e)
		}))
	}

	cancelAll := func() {
		for _, cancel := range cancels {
			cancel()
		}
	}

	r.mu.Lock()
	if r.closed {
		// Close 与 Attach 竞态：立即回收订阅
		r.mu.Unlock()
		cancelAll()
		return nil, ErrClosed
	}
	r.cancels[id] = cancelAll
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		cancel, ok := r.cancels[id]
		delete(r.cancels, id)
		r.mu.Unlock()
		if ok {
			cancel()
		}
	}, nil
}

// Close 解除所有挂接。幂等，不关闭 Redis 客户端。
func (r *Relay) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancels := r.cancels
	r.cancels = nil
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	return nil
}

// publish 发布单个事件。失败只记录日志，从不反馈给调度。
func (r *Relay) publish(name string, e xemit.Event) {
	env := Envelope{
		Name:  name,
		Topic: string(e.Topic),
		Time:  e.Time,
	}
	switch p := e.Payload.(type) {
	case nil:
	case error:
		env.Payload = p.Error()
	default:
		env.Payload = p
	}

	data, err := json.Marshal(env)
	if err != nil {
		r.opts.logger.Warn("xrelay: marshal event failed",
			"scheduler", name, "topic", e.Topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.opts.timeout)
	defer cancel()

	channel := r.Channel(e.Topic)
	if err := r.client.Publish(ctx, channel, data).Err(); err != nil {
		r.opts.logger.Warn("xrelay: publish failed",
			"scheduler", name, "channel", channel, "error", err)
	}
}
