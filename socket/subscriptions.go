package socket

import (
	"bytes"
	"sync"

	"github.com/tobi-tobsen/netmq/pipe"
)

// subStore tracks, per pipe, the set of topic prefixes that peer has asked
// for via subscribe/unsubscribe command frames, and matches outbound topics
// against them byte-prefix-wise.
type subStore struct {
	mu   sync.Mutex
	subs map[*pipe.Pipe][][]byte
}

func newSubStore() *subStore {
	return &subStore{subs: make(map[*pipe.Pipe][][]byte)}
}

func (s *subStore) attach(p *pipe.Pipe) {
	s.mu.Lock()
	s.subs[p] = nil
	s.mu.Unlock()
}

func (s *subStore) detach(p *pipe.Pipe) {
	s.mu.Lock()
	delete(s.subs, p)
	s.mu.Unlock()
}

// apply records a subscribe (cmd[0]==1) or unsubscribe (cmd[0]==0) command
// for p, returning whether it was a subscribe and the affected topic.
func (s *subStore) apply(p *pipe.Pipe, cmd []byte) (subscribe bool, topic []byte) {
	if len(cmd) == 0 {
		return false, nil
	}
	topic = append([]byte(nil), cmd[1:]...)

	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.subs[p]
	if cmd[0] == 1 {
		s.subs[p] = append(list, topic)
		return true, topic
	}
	for i, t := range list {
		if bytes.Equal(t, topic) {
			s.subs[p] = append(list[:i], list[i+1:]...)
			break
		}
	}
	return false, topic
}

func (s *subStore) matches(p *pipe.Pipe, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.subs[p] {
		if bytes.HasPrefix(data, t) {
			return true
		}
	}
	return false
}

// recipients returns every pipe in ps whose current subscription set
// matches data, in attach order.
func (s *subStore) recipients(ps *PipeSet, data []byte) []*pipe.Pipe {
	var out []*pipe.Pipe
	ps.Each(func(p *pipe.Pipe, _ []byte) {
		if s.matches(p, data) {
			out = append(out, p)
		}
	})
	return out
}

// topicRefCounts tracks, for each exact topic string, how many subscribe
// commands (net of unsubscribes) are outstanding across every subscriber,
// so XPUB can report only the first subscriber (and last unsubscriber) by
// default.
type topicRefCounts struct {
	mu     sync.Mutex
	counts map[string]int
}

func newTopicRefCounts() *topicRefCounts {
	return &topicRefCounts{counts: make(map[string]int)}
}

// subscribe increments topic's refcount and reports whether this was the
// first subscriber (count went 0 -> 1).
func (t *topicRefCounts) subscribe(topic []byte) (first bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := string(topic)
	t.counts[key]++
	return t.counts[key] == 1
}

// unsubscribe decrements topic's refcount and reports whether this was the
// last subscriber (count went 1 -> 0).
func (t *topicRefCounts) unsubscribe(topic []byte) (last bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := string(topic)
	if t.counts[key] == 0 {
		return false
	}
	t.counts[key]--
	if t.counts[key] == 0 {
		delete(t.counts, key)
		return true
	}
	return false
}
