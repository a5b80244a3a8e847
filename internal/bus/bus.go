package bus

import (
	"bytes"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"sportsarb/pkg/utils"
)

// bus.go - шина hot-plane: topic-pattern publish/subscribe
//
// Обобщение internal/websocket.Hub: вместо одного broadcast-канала на всех
// клиентов — реестр подписок по шаблону топика, с publisher-assigned
// монотонными номерами последовательности (per-bus instance = per-socket
// в терминах спеки) для обнаружения пропусков потребителями. Доставка
// best-effort, fan-out, at-most-once: медленный подписчик теряет
// сообщения, а не блокирует публикацию (см. Hub.Run's slow-consumer
// eviction, здесь — drop вместо eviction, т.к. подписчик может
// восстановиться на следующем тике).

var jsonBufferPool = sync.Pool{
	New: func() interface{} {
		return bytes.NewBuffer(make([]byte, 0, 512))
	},
}

// Envelope — конверт сообщения hot-plane.
type Envelope struct {
	Topic        string          `json:"topic"`
	Payload      json.RawMessage `json:"payload"`
	PublisherSeq uint64          `json:"publisher_seq"`
	PublishTS    time.Time       `json:"publish_ts"`
	ReceiveTS    time.Time       `json:"receive_ts"`
	Source       string          `json:"source"`
}

type subscription struct {
	pattern string
	ch      chan Envelope
}

// Subscription is a live handle returned by Subscribe. Read from C()
// until Close() is called.
type Subscription struct {
	sub *subscription
	bus *Bus
}

// C returns the channel of envelopes matching this subscription's pattern.
func (s *Subscription) C() <-chan Envelope { return s.sub.ch }

// Close unregisters the subscription and closes its channel.
func (s *Subscription) Close() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()
	if _, ok := s.bus.subs[s.sub]; ok {
		delete(s.bus.subs, s.sub)
		close(s.sub.ch)
	}
}

// Bus is an in-process (or in-cluster, behind a transport adapter)
// topic-pattern pub/sub fabric. One Bus instance models one logical
// publisher socket: PublisherSeq increments per Publish call from this
// instance, monotonic and gap-detectable by consumers across reconnects.
type Bus struct {
	mu      sync.RWMutex
	subs    map[*subscription]struct{}
	seq     uint64
	source  string
	logger  *utils.Logger
}

// New creates a Bus identifying itself as source in every envelope it
// publishes (e.g. "shard-3", "signalproc").
func New(source string) *Bus {
	return &Bus{
		subs:   make(map[*subscription]struct{}),
		source: source,
		logger: utils.L().WithComponent("bus"),
	}
}

// Publish marshals payload to JSON and fans it out to every subscription
// whose pattern matches topic. A subscriber whose channel is full drops
// the message (hot plane is lossy by design; the next tick supersedes it).
func (b *Bus) Publish(topic string, payload interface{}) error {
	buf := jsonBufferPool.Get().(*bytes.Buffer)
	buf.Reset()
	if err := json.NewEncoder(buf).Encode(payload); err != nil {
		jsonBufferPool.Put(buf)
		return err
	}
	data := buf.Bytes()
	if len(data) > 0 && data[len(data)-1] == '\n' {
		data = data[:len(data)-1]
	}
	raw := make(json.RawMessage, len(data))
	copy(raw, data)
	jsonBufferPool.Put(buf)

	env := Envelope{
		Topic:        topic,
		Payload:      raw,
		PublisherSeq: atomic.AddUint64(&b.seq, 1),
		PublishTS:    time.Now(),
		Source:       b.source,
	}

	b.mu.RLock()
	matched := make([]*subscription, 0, len(b.subs))
	for s := range b.subs {
		if matchTopic(s.pattern, topic) {
			matched = append(matched, s)
		}
	}
	b.mu.RUnlock()

	for _, s := range matched {
		deliver := env
		deliver.ReceiveTS = time.Now()
		select {
		case s.ch <- deliver:
		default:
			b.logger.Warn("subscriber buffer full, dropping message",
				utils.String("topic", topic), utils.String("pattern", s.pattern))
		}
	}
	return nil
}

// Subscribe registers a topic-pattern subscription with a bounded buffer.
// Patterns match dot-separated segments; "*" matches exactly one segment,
// and a trailing "*" also absorbs any further segments (so "prices.kalshi.*"
// matches "prices.kalshi.NFL-KC-BUF" and anything deeper). The literal
// pattern "*.*" is reserved for the observer and matches every topic.
func (b *Bus) Subscribe(pattern string) *Subscription {
	s := &subscription{pattern: pattern, ch: make(chan Envelope, 1024)}
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return &Subscription{sub: s, bus: b}
}

// SubscriberCount returns the number of live subscriptions, mirroring
// Hub.ClientCount.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func matchTopic(pattern, topic string) bool {
	if pattern == "*.*" {
		return true
	}
	pParts := strings.Split(pattern, ".")
	tParts := strings.Split(topic, ".")
	for i, p := range pParts {
		if i >= len(tParts) {
			return false
		}
		if p == "*" && i == len(pParts)-1 {
			return true
		}
		if p != "*" && p != tParts[i] {
			return false
		}
	}
	return len(pParts) == len(tParts)
}
