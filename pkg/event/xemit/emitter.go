package xemit

import (
	"sync"
	"time"
)

// Topic 事件主题。主题集合固定，不支持动态创建。
type Topic string

const (
	// TopicError 任务单次执行失败时发布，载荷为失败的 error 值。
	TopicError Topic = "error"
	// TopicStop 调度终止时发布，载荷为 nil。
	TopicStop Topic = "stop"
	// TopicTimeout 执行超过失速阈值时发布，载荷为失速详情。
	TopicTimeout Topic = "timeout"
)

// Valid 报告主题是否为已知的固定主题之一。
func (t Topic) Valid() bool {
	switch t {
	case TopicError, TopicStop, TopicTimeout:
		return true
	default:
		return false
	}
}

// Event 单次事件。
type Event struct {
	// Topic 事件主题。
	Topic Topic
	// Time 发布时间。
	Time time.Time
	// Payload 主题相关的载荷，见各主题常量的说明。
	Payload any
}

// Handler 事件回调。在 Emit 调用方的 goroutine 上同步执行。
type Handler func(e Event)

// subscription 单个订阅。once 订阅在触发前移除。
type subscription struct {
	id   uint64
	fn   Handler
	once bool
}

// Emitter 固定主题的同步事件发布器。
//
// 零值不可用，必须通过 [NewEmitter] 创建。
// Emitter 不拥有任何后台 goroutine，生命周期随订阅方。
type Emitter struct {
	mu   sync.Mutex
	seq  uint64
	subs map[Topic][]subscription
}

// NewEmitter 创建事件发布器。
func NewEmitter() *Emitter {
	return &Emitter{subs: make(map[Topic][]subscription)}
}

// On 注册持久订阅，返回取消函数。
//
// 取消函数幂等，可多次调用。fn 为 nil 时不注册，返回空操作取消函数。
func (e *Emitter) On(topic Topic, fn Handler) (cancel func()) {
	return e.subscribe(topic, fn, false)
}

// Once 注册一次性订阅：首次匹配的事件触发后自动移除。
//
// 订阅在回调执行之前移除，因此回调内对同一主题的 Emit 不会重入。
func (e *Emitter) Once(topic Topic, fn Handler) (cancel func()) {
	return e.subscribe(topic, fn, true)
}

func (e *Emitter) subscribe(topic Topic, fn Handler, once bool) func() {
	if fn == nil {
		return func() {}
	}

	e.mu.Lock()
	e.seq++
	id := e.seq
	e.subs[topic] = append(e.subs[topic], subscription{id: id, fn: fn, once: once})
	e.mu.Unlock()

	var cancelOnce sync.Once
	return func() {
		cancelOnce.Do(func() {
			e.remove(topic, id)
		})
	}
}

// remove 按 id 移除订阅。订阅已不存在时为空操作（once 触发后再取消的场景）。
func (e *Emitter) remove(topic Topic, id uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.subs[topic]
	for i, sub := range list {
		if sub.id == id {
			e.subs[topic] = append(list[:i:i], list[i+1:]...)
			return
		}
	}
}

// Emit 向 topic 的全部当前订阅者发布事件。
//
// 回调按订阅顺序同步执行。载荷不做拷贝，订阅方不应修改。
// 没有订阅者时 Emit 为空操作。
func (e *Emitter) Emit(topic Topic, payload any) {
	ev := Event{Topic: topic, Time: time.Now(), Payload: payload}

	// 快照当前订阅者并预先摘除 once 订阅，回调在锁外执行，
	// 保证回调内可以安全地 On/Once/Emit/cancel。
	e.mu.Lock()
	list := e.subs[topic]
	snapshot := make([]subscription, len(list))
	copy(snapshot, list)

	if len(list) > 0 {
		kept := list[:0]
		for _, sub := range list {
			if !sub.once {
				kept = append(kept, sub)
			}
		}
		e.subs[topic] = kept
	}
	e.mu.Unlock()

	for _, sub := range snapshot {
		sub.fn(ev)
	}
}

// SubscriberCount 返回 topic 当前的订阅者数量。
func (e *Emitter) SubscriberCount(topic Topic) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.subs[topic])
}
