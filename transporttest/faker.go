// Package transporttest provides test doubles for transport.Duplex: an
// in-memory, scriptable duplex and a throwaway TLS certificate generator.
package transporttest

import (
	"sync"

	"github.com/mohau-r/emailjs-smtp-client/transport"
)

// FakeDuplex is a scriptable transport.Duplex: Open immediately reports
// OnOpen (or OnError, if OpenErr is set), Send records every write,
// and Feed lets a test push bytes to the sink as though the server spoke.
type FakeDuplex struct {
	mu sync.Mutex

	sink   transport.EventSink
	st     transport.State
	closed bool
	Sent   [][]byte
	Susps  int
	Resms  int

	// OpenErr, if set, makes Open report OnError instead of OnOpen.
	OpenErr error
}

// NewFakeDuplex builds a FakeDuplex bound to sink.
func NewFakeDuplex(sink transport.EventSink) *FakeDuplex {
	return &FakeDuplex{sink: sink, st: transport.Closed}
}

// Open transitions to Open and reports OnOpen, or reports OnError followed
// by OnClose (async, matching nettransport) if OpenErr is set.
func (f *FakeDuplex) Open() error {
	f.mu.Lock()
	if f.OpenErr != nil {
		err := f.OpenErr
		already := f.closed
		f.closed = true
		f.mu.Unlock()
		f.sink.OnError(err)
		if !already {
			go f.sink.OnClose()
		}
		return err
	}
	f.st = transport.Open
	f.mu.Unlock()
	f.sink.OnOpen()
	return nil
}

// Send records p and appends a copy to Sent.
func (f *FakeDuplex) Send(p []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]byte, len(p))
	copy(cp, p)
	f.Sent = append(f.Sent, cp)
	return nil
}

// Close transitions to Closed and reports OnClose, once, from a fresh
// goroutine — matching nettransport, so a caller that reaches Close from
// within its own event-handling call stack never re-enters its own lock.
func (f *FakeDuplex) Close() error {
	f.mu.Lock()
	already := f.closed
	f.closed = true
	f.st = transport.Closed
	f.mu.Unlock()
	if !already {
		go f.sink.OnClose()
	}
	return nil
}

// Suspend counts the call; FakeDuplex never actually withholds Feed.
func (f *FakeDuplex) Suspend() {
	f.mu.Lock()
	f.Susps++
	f.mu.Unlock()
}

// Resume counts the call.
func (f *FakeDuplex) Resume() {
	f.mu.Lock()
	f.Resms++
	f.mu.Unlock()
}

// State reports the duplex's current readyState.
func (f *FakeDuplex) State() transport.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.st
}

// Feed delivers p to the bound sink's OnData, as though the server sent it.
func (f *FakeDuplex) Feed(p []byte) {
	f.sink.OnData(p)
}

// SentStrings returns Sent as strings, for readable test assertions.
func (f *FakeDuplex) SentStrings() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.Sent))
	for i, b := range f.Sent {
		out[i] = string(b)
	}
	return out
}
