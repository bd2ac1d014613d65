// Package smtpclient is the caller-facing SMTP client: it binds a
// transport.Duplex's events to a reply.Parser and a session.Machine, and
// exposes the single-threaded operations and event hooks a caller drives a
// mail transaction with.
package smtpclient

import (
	"fmt"
	"sync"
	"time"

	"github.com/mohau-r/emailjs-smtp-client/logring"
	"github.com/mohau-r/emailjs-smtp-client/reply"
	"github.com/mohau-r/emailjs-smtp-client/session"
	"github.com/mohau-r/emailjs-smtp-client/smtperr"
	"github.com/mohau-r/emailjs-smtp-client/transport"
	"github.com/mohau-r/emailjs-smtp-client/transport/nettransport"
)

// machineTransport adapts a transport.Duplex into the narrower
// session.Transport surface the state machine needs, logging every
// client-to-server write into the facade's debug ring on the way out and
// notifying onSend so the facade can arm its command timeout.
type machineTransport struct {
	duplex transport.Duplex
	log    *logring.Ring
	onSend func()
}

func (t *machineTransport) Send(p []byte) error {
	t.log.Append(logring.Client, p)
	err := t.duplex.Send(p)
	if err == nil && t.onSend != nil {
		t.onSend()
	}
	return err
}
func (t *machineTransport) Close() error           { return t.duplex.Close() }
func (t *machineTransport) Suspend()               { t.duplex.Suspend() }
func (t *machineTransport) Resume()                { t.duplex.Resume() }
func (t *machineTransport) State() transport.State { return t.duplex.State() }

// Client is an SMTP client driving one mail session over one connection.
// Construct with New; it is not safe for concurrent use by multiple
// goroutines beyond the Duplex's own event-delivery goroutine, which this
// Client serializes against internally.
type Client struct {
	mu       sync.Mutex
	opts     Options
	duplex   transport.Duplex
	parser   *reply.Parser
	machine  *session.Machine
	log      *logring.Ring
	cmdTimer *time.Timer

	// OnIdle fires whenever the session reaches Idle, ready for UseEnvelope
	// or Quit.
	OnIdle func()
	// OnReady fires once the server accepts DATA, carrying any recipients
	// rejected during the RCPT phase.
	OnReady func(failedRecipients []string)
	// OnDone fires after the server's post-terminator reply to the message
	// body.
	OnDone func(success bool)
	// OnDrain fires when the duplex, having reported backpressure, is ready
	// to accept more Send calls.
	OnDrain func()
	// OnError fires on any session-collapsing failure: a protocol, auth, or
	// envelope error from the state machine, or a transport-level failure
	// (dial, TLS handshake, read/write) reported before or outside of it.
	OnError func(err error)
	// OnClose fires exactly once, after the connection has fully torn down.
	OnClose func()
}

// New constructs a Client targeting host:port, applying opts over the
// default configuration (plaintext, "localhost" EHLO name, no auth, no
// debug log, 30s dial/handshake timeouts). It does not connect; call
// Connect.
func New(host string, port int, opts ...Option) *Client {
	o := defaultOptions(host, port)
	for _, opt := range opts {
		opt(&o)
	}

	c := &Client{
		opts:   o,
		parser: &reply.Parser{},
		log:    logring.New(o.logLength),
	}

	cfg := session.Config{
		Name:            o.name,
		LMTP:            o.lmtp,
		Auth:            o.auth,
		AuthMethod:      o.authMethod,
		DisableEscaping: o.disableEscaping,
	}

	nt := nettransport.New(nettransport.Config{
		Addr:                fmt.Sprintf("%s:%d", o.host, o.port),
		UseSSL:              o.useSSL,
		CA:                  o.ca,
		TLSConfig:           o.tlsConfig,
		DialTimeout:         o.dialTimeout,
		TLSHandshakeTimeout: o.tlsHandshakeTimeout,
	}, &clientSink{c: c})
	c.duplex = nt

	mt := &machineTransport{duplex: c.duplex, log: c.log}
	mt.onSend = c.armCommandTimeout
	c.machine = session.New(cfg, mt)
	// The machine fires these with c.mu held; release it around the caller's
	// callback so the callback can call back into the Client.
	c.machine.OnIdle = func() {
		if c.OnIdle != nil {
			c.mu.Unlock()
			defer c.mu.Lock()
			c.OnIdle()
		}
	}
	c.machine.OnReady = func(failed []string) {
		if c.OnReady != nil {
			c.mu.Unlock()
			defer c.mu.Lock()
			c.OnReady(failed)
		}
	}
	c.machine.OnDone = func(ok bool) {
		if c.OnDone != nil {
			c.mu.Unlock()
			defer c.mu.Lock()
			c.OnDone(ok)
		}
	}
	c.machine.OnError = func(err error) {
		if c.OnError != nil {
			c.mu.Unlock()
			defer c.mu.Lock()
			c.OnError(err)
		}
	}
	c.machine.OnClose = func() {
		if c.OnClose != nil {
			c.mu.Unlock()
			defer c.mu.Lock()
			c.OnClose()
		}
	}

	return c
}

// Connect begins dialing. Completion is reported through the greeting
// reply reaching OnIdle (success) or OnError/OnClose (failure).
func (c *Client) Connect() error {
	return c.duplex.Open()
}

// AuthenticatedAs reports the username used in the most recently completed
// AUTH exchange, or "" if the session never authenticated.
func (c *Client) AuthenticatedAs() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.AuthenticatedAs()
}

// State reports the session's current protocol state.
func (c *Client) State() session.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.State()
}

// UseEnvelope begins a new mail transaction; legal only while Idle.
func (c *Client) UseEnvelope(from string, to []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.UseEnvelope(from, to)
}

// Send writes body bytes through the dot-stuffer, once OnReady has fired.
func (c *Client) Send(p []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Send(p)
}

// End writes the DATA terminator and waits for the server's reply, which
// arrives through OnDone.
func (c *Client) End() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.EndData()
}

// Suspend pauses delivery of further server data.
func (c *Client) Suspend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.machine.Suspend()
}

// Resume resumes delivery of server data paused by Suspend.
func (c *Client) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.machine.Resume()
}

// Reset sends RSET and re-runs authentication, optionally with new
// credentials.
func (c *Client) Reset(newAuth *session.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Reset(newAuth)
}

// Quit sends QUIT; the server's reply tears the session down.
func (c *Client) Quit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.machine.Quit()
}

// Close tears the session down immediately without sending QUIT.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disarmCommandTimeout()
	return c.machine.Close()
}

// Log returns the debug log ring configured via WithLogLength.
func (c *Client) Log() *logring.Ring {
	return c.log
}

// armCommandTimeout (re-)starts the command timeout after a command is sent.
// Called with c.mu already held, from within machineTransport.Send.
func (c *Client) armCommandTimeout() {
	if c.opts.commandTimeout <= 0 {
		return
	}
	if c.cmdTimer != nil {
		c.cmdTimer.Stop()
	}
	c.cmdTimer = time.AfterFunc(c.opts.commandTimeout, c.handleCommandTimeout)
}

// disarmCommandTimeout cancels a pending timeout once its reply arrives.
// Called with c.mu already held.
func (c *Client) disarmCommandTimeout() {
	if c.cmdTimer != nil {
		c.cmdTimer.Stop()
		c.cmdTimer = nil
	}
}

func (c *Client) handleCommandTimeout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.machine.Fail(smtperr.Protocol("timed out waiting for a reply", 0))
}

// clientSink implements transport.EventSink on behalf of a Client. It is a
// separate type because Client's own OnIdle/OnReady/.../OnClose fields are
// the caller-facing callback slots, not the transport sink methods.
type clientSink struct {
	c *Client
}

func (s *clientSink) OnOpen() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.machine.HandleOpen()
}

func (s *clientSink) OnData(chunk []byte) {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.log.Append(logring.Server, chunk)
	for _, r := range s.c.parser.Feed(chunk) {
		s.c.disarmCommandTimeout()
		s.c.machine.Dispatch(r)
	}
}

func (s *clientSink) OnDrain() {
	if s.c.OnDrain != nil {
		s.c.OnDrain()
	}
}

// OnError handles transport-level failures (dial, TLS handshake,
// read/write), reporting them directly to the caller and then closing the
// session. The close runs on a fresh goroutine because a failed Send reports
// OnError while c.mu is already held; the resulting teardown reaches OnClose
// through HandleTransportClosed.
func (s *clientSink) OnError(err error) {
	if s.c.OnError != nil {
		s.c.OnError(err)
	}
	go s.c.Close()
}

func (s *clientSink) OnClose() {
	s.c.mu.Lock()
	defer s.c.mu.Unlock()
	s.c.disarmCommandTimeout()
	s.c.machine.HandleTransportClosed()
}
