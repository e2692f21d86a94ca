package hub

import (
	"sync"

	"go.uber.org/zap"

	"github.com/corey/dashhub/internal/ports"
)

// Broadcaster fans frames out to the connections subscribed to a topic.
// Publish is serialised, so every subscriber of a topic sees frames in
// publish order.
type Broadcaster struct {
	mu     sync.Mutex
	topics map[Topic]map[string]Conn // topic -> conn id -> conn

	logger  *zap.Logger
	metrics ports.Metrics
}

// NewBroadcaster creates an empty broadcaster. Nil logger/metrics are replaced by no-ops.
func NewBroadcaster(logger *zap.Logger, metrics ports.Metrics) *Broadcaster {
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = ports.NopMetrics{}
	}
	return &Broadcaster{
		topics:  make(map[Topic]map[string]Conn),
		logger:  logger.Named("broadcaster"),
		metrics: metrics,
	}
}

// Add subscribes conn to topic. Adding the same conn twice is harmless.
func (b *Broadcaster) Add(topic Topic, conn Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[topic]
	if subs == nil {
		subs = make(map[string]Conn)
		b.topics[topic] = subs
	}
	subs[conn.ID()] = conn
	b.reportLocked(topic.Kind())
}

// Remove unsubscribes conn from topic and reports whether it was a member.
// The connection is not closed; its owner decides that.
func (b *Broadcaster) Remove(topic Topic, conn Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[topic]
	if _, ok := subs[conn.ID()]; !ok {
		return false
	}
	delete(subs, conn.ID())
	if len(subs) == 0 {
		delete(b.topics, topic)
	}
	b.reportLocked(topic.Kind())
	return true
}

// Publish writes f to every subscriber of topic and returns how many
// subscribers remain. A subscriber whose write fails is removed and closed
// right here; this is the only place a silently vanished peer is noticed.
// Publishing to a topic nobody listens on is a no-op.
func (b *Broadcaster) Publish(topic Topic, f Frame) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[topic]
	if len(subs) == 0 {
		return 0
	}

	dropped := 0
	for id, conn := range subs {
		if err := conn.Write(f); err != nil {
			delete(subs, id)
			_ = conn.Close()
			dropped++
			b.metrics.ObserveDroppedSubscriber(topic.Kind())
			b.logger.Debug("dropped subscriber",
				zap.String("topic", string(topic)),
				zap.String("conn", id),
				zap.Error(err),
			)
		}
	}
	b.metrics.ObserveFrame(f.Kind())

	remaining := len(subs)
	if remaining == 0 {
		delete(b.topics, topic)
	}
	if dropped > 0 {
		b.reportLocked(topic.Kind())
	}
	return remaining
}

// Count returns the number of subscribers on topic.
func (b *Broadcaster) Count(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[topic])
}

// CloseTopic closes and removes every subscriber of topic.
func (b *Broadcaster) CloseTopic(topic Topic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, conn := range b.topics[topic] {
		_ = conn.Close()
	}
	delete(b.topics, topic)
	b.reportLocked(topic.Kind())
}

// CloseAll closes every connection on every topic. Used at shutdown so peers
// see the stream end instead of hanging.
func (b *Broadcaster) CloseAll() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for topic, subs := range b.topics {
		for _, conn := range subs {
			_ = conn.Close()
			n++
		}
		delete(b.topics, topic)
	}
	b.metrics.SetSubscribers(TopicKindProject, 0)
	b.metrics.SetSubscribers(TopicKindGlobal, 0)
	return n
}

// reportLocked recomputes the subscriber gauge for one topic kind.
func (b *Broadcaster) reportLocked(kind string) {
	n := 0
	for topic, subs := range b.topics {
		if topic.Kind() == kind {
			n += len(subs)
		}
	}
	b.metrics.SetSubscribers(kind, n)
}
