package waku

import "sync"

const subscriberBuffer = 64

// messageBus is the in-process mock transport: one channel per subscribed
// topic, with store-and-forward buffering for topics nobody listens on yet.
type messageBus struct {
	mu          sync.Mutex
	subscribers map[string]chan Envelope
	mailbox     map[string][]Envelope
}

var globalBus = &messageBus{
	subscribers: make(map[string]chan Envelope),
	mailbox:     make(map[string][]Envelope),
}

func (b *messageBus) publish(env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[env.Topic]; ok {
		select {
		case ch <- env:
		default:
			// Subscriber is not draining; park the message for later.
			b.mailbox[env.Topic] = append(b.mailbox[env.Topic], env)
		}
		return
	}
	b.mailbox[env.Topic] = append(b.mailbox[env.Topic], env)
}

func (b *messageBus) subscribe(topic string) <-chan Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[topic]; ok {
		return ch
	}
	ch := make(chan Envelope, subscriberBuffer)
	pending := b.mailbox[topic]
	delete(b.mailbox, topic)
	for _, env := range pending {
		select {
		case ch <- env:
		default:
			b.mailbox[topic] = append(b.mailbox[topic], env)
		}
	}
	b.subscribers[topic] = ch
	return ch
}

func (b *messageBus) unsubscribe(topic string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[topic]; ok {
		close(ch)
		delete(b.subscribers, topic)
	}
}
