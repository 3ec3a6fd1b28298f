// Package bus is the in-process notification fabric: gauge services
// publish retained battery state and alert events on it, and consumers
// (the MQTT bridge, tests, future sinks) subscribe without knowing who
// produced the data.
package bus

import (
	"strings"
	"sync"
)

// Topic is a slash-path split into levels, e.g. {"power","battery","main","state"}.
type Topic []string

// T builds a Topic from a slash-separated string.
func T(path string) Topic { return strings.Split(path, "/") }

func (t Topic) String() string { return strings.Join(t, "/") }

// Wildcard levels in subscription topics.
const (
	WildOne = "+" // matches exactly one level
	WildAll = "#" // matches the remainder of the topic (terminal)
)

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

type node struct {
	children map[string]*node
	subs     []*Subscription
	retained *Message
}

type Bus struct {
	mu   sync.RWMutex
	root *node
	qLen int
}

// New creates a bus with the given per-subscription queue length.
func New(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{root: &node{}, qLen: queueLen}
}

func (b *Bus) addSubscription(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, lvl := range topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[lvl]
		if !ok {
			child = &node{}
			n.children[lvl] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	// Deliver matching retained messages so late subscribers start with
	// current state.
	b.root.eachRetained(nil, func(m *Message) {
		if topicMatches(topic, m.Topic) {
			deliver(sub, m)
		}
	})
}

func (n *node) eachRetained(prefix Topic, fn func(*Message)) {
	if n.retained != nil {
		fn(n.retained)
	}
	for lvl, child := range n.children {
		child.eachRetained(append(prefix, lvl), fn)
	}
}

// Publish delivers msg to every subscription whose pattern matches, and
// stores it when retained (nil payload clears the retained slot).
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.root.match(msg.Topic, func(sub *Subscription) { deliver(sub, msg) })

	if !msg.Retained {
		return
	}
	n := b.root
	for _, lvl := range msg.Topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[lvl]
		if !ok {
			child = &node{}
			n.children[lvl] = child
		}
		n = child
	}
	if msg.Payload == nil {
		n.retained = nil
	} else {
		n.retained = msg
	}
}

// match walks the trie against a concrete topic, honoring wildcard
// subscription branches.
func (n *node) match(topic Topic, fn func(*Subscription)) {
	if len(topic) == 0 {
		for _, sub := range n.subs {
			fn(sub)
		}
		if hash, ok := n.children[WildAll]; ok {
			for _, sub := range hash.subs {
				fn(sub)
			}
		}
		return
	}
	if child, ok := n.children[topic[0]]; ok {
		child.match(topic[1:], fn)
	}
	if plus, ok := n.children[WildOne]; ok {
		plus.match(topic[1:], fn)
	}
	if hash, ok := n.children[WildAll]; ok {
		for _, sub := range hash.subs {
			fn(sub)
		}
	}
}

func topicMatches(pattern, topic Topic) bool {
	for i, lvl := range pattern {
		if lvl == WildAll {
			return true
		}
		if i >= len(topic) {
			return false
		}
		if lvl != WildOne && lvl != topic[i] {
			return false
		}
	}
	return len(pattern) == len(topic)
}

func deliver(sub *Subscription, msg *Message) {
	select {
	case sub.ch <- msg:
	default:
		// Queue full: drop the oldest so fresh state wins.
		select {
		case <-sub.ch:
		default:
		}
		select {
		case sub.ch <- msg:
		default:
		}
	}
}

func (b *Bus) unsubscribe(topic Topic, sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	var stack []*node
	for _, lvl := range topic {
		if n.children == nil {
			return
		}
		child, ok := n.children[lvl]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	// Prune empty branches.
	for i := len(topic) - 1; i >= 0; i-- {
		parent := stack[i]
		child := parent.children[topic[i]]
		if len(child.subs) == 0 && len(child.children) == 0 && child.retained == nil {
			delete(parent.children, topic[i])
		} else {
			break
		}
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

// Connection owns a set of subscriptions; Disconnect releases them all.
type Connection struct {
	bus  *Bus
	mu   sync.Mutex
	subs []*Subscription
	id   string
}

func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) Publish(topic Topic, payload any, retained bool) {
	c.bus.Publish(&Message{Topic: topic, Payload: payload, Retained: retained})
}

func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: topic,
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.bus.addSubscription(topic, sub)
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	return sub
}

func (c *Connection) Unsubscribe(sub *Subscription) {
	c.bus.unsubscribe(sub.topic, sub)
	c.mu.Lock()
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			break
		}
	}
	c.mu.Unlock()
	close(sub.ch)
}

func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()
	for _, sub := range subs {
		c.bus.unsubscribe(sub.topic, sub)
		close(sub.ch)
	}
}
