// Package session implements the SMTP client protocol state machine: it
// sequences commands, routes each server reply to the handler named by the
// current State, and tracks envelope progress. It is reply-driven and
// single-threaded — the caller (the smtpclient facade) is responsible for
// ensuring Dispatch and the public operations below are never invoked
// concurrently with each other.
package session

import (
	"fmt"
	"strings"

	"github.com/mohau-r/emailjs-smtp-client/dotwriter"
	"github.com/mohau-r/emailjs-smtp-client/reply"
	"github.com/mohau-r/emailjs-smtp-client/smtperr"
	"github.com/mohau-r/emailjs-smtp-client/transport"
)

// Credentials carries the authentication inputs the caller configured. Pass
// is used for PLAIN and LOGIN; Token is used for XOAUTH2.
type Credentials struct {
	User  string
	Pass  string
	Token string
}

// Config is the subset of the client's Options the state machine needs to
// drive the conversation.
type Config struct {
	// Name is the EHLO/HELO/LHLO argument.
	Name string
	// LMTP substitutes LHLO for EHLO.
	LMTP bool
	// Auth, if non-nil, enables authentication after EHLO/HELO.
	Auth *Credentials
	// AuthMethod overrides capability-based mechanism selection: "PLAIN",
	// "LOGIN", "XOAUTH2", or "" to select automatically.
	AuthMethod string
	// DisableEscaping disables DATA dot-stuffing.
	DisableEscaping bool
}

// Transport is the capability surface Machine needs from the underlying
// duplex: enough to send commands and to respect Suspend/Resume/Close
// semantics, without depending on transport.Duplex's Open/event-registration
// half, which belongs to the facade.
type Transport interface {
	Send(data []byte) error
	Close() error
	Suspend()
	Resume()
	State() transport.State
}

type handlerFunc func(*Machine, reply.Reply)

// Machine is the SMTP client protocol state machine described in package
// session's doc comment. Use New to construct one.
type Machine struct {
	cfg       Config
	transport Transport
	writer    *dotwriter.Writer

	state           State
	supportedAuth   map[string]struct{}
	authenticatedAs string
	envelope        *Envelope
	dataMode        bool
	destroyed       bool

	// OnIdle fires whenever the machine reaches the Idle state, ready for
	// UseEnvelope or Quit.
	OnIdle func()
	// OnReady fires once the server accepts DATA, carrying the recipients
	// rejected during the RCPT phase (not an error — delivery proceeds to
	// whichever recipients remain).
	OnReady func(failedRecipients []string)
	// OnDone fires after the server's post-terminator reply, reporting
	// whether the body was accepted.
	OnDone func(success bool)
	// OnError fires once per session-collapsing failure, immediately
	// before the machine closes the transport.
	OnError func(err error)
	// OnClose fires exactly once, after the transport has fully torn down.
	OnClose func()
}

// New builds a Machine bound to t. The machine starts in Connecting; call
// HandleOpen once the transport's OnOpen event fires.
func New(cfg Config, t Transport) *Machine {
	return &Machine{
		cfg:           cfg,
		transport:     t,
		writer:        dotwriter.New(cfg.DisableEscaping),
		state:         Connecting,
		supportedAuth: make(map[string]struct{}),
	}
}

// State reports the machine's current State, exported for tests and for a
// facade that wants to log transitions.
func (m *Machine) State() State {
	return m.state
}

// AuthenticatedAs reports the username used in the most recently completed
// AUTH exchange, or "" if the session never authenticated.
func (m *Machine) AuthenticatedAs() string {
	return m.authenticatedAs
}

// HandleOpen transitions Connecting -> Greeting once the transport reports
// OnOpen. The greeting reply itself is dispatched normally through
// Dispatch.
func (m *Machine) HandleOpen() {
	if m.destroyed {
		return
	}
	m.state = Greeting
}

// Dispatch routes one complete reply to the handler named by the current
// state, in the order replies arrive.
func (m *Machine) Dispatch(r reply.Reply) {
	if m.destroyed {
		return
	}
	h := handlers[m.state]
	if h == nil {
		return
	}
	h(m, r)
}

// UseEnvelope begins a new mail transaction. It is only legal while Idle.
// Addresses are wrapped in angle brackets verbatim; mailbox syntax
// correctness beyond rejecting embedded CR/LF is the caller's
// responsibility.
func (m *Machine) UseEnvelope(from string, to []string) error {
	if m.state != Idle {
		return smtperr.Protocol(fmt.Sprintf("useEnvelope called while not idle (state=%s)", m.state), 0)
	}
	if strings.ContainsAny(from, "\r\n") {
		return smtperr.Protocol("from address must not contain CR or LF", 0)
	}
	for _, addr := range to {
		if strings.ContainsAny(addr, "\r\n") {
			return smtperr.Protocol("recipient address must not contain CR or LF", 0)
		}
	}

	env := NewEnvelope(from, to)
	env.Started = true
	m.envelope = env
	m.state = Mail
	return m.send("MAIL FROM:<%s>", from)
}

// Send forwards body bytes through the dot-stuffer to the transport. It is
// a no-op unless the machine is currently in DATA mode, including after
// EndData but before the server's post-terminator reply (the spec leaves
// this ambiguous in the source it is ported from; this client treats it as
// a silent no-op rather than an error).
func (m *Machine) Send(p []byte) error {
	if !m.dataMode {
		return nil
	}
	return m.transport.Send(m.writer.Write(p))
}

// EndData writes the DATA terminator, leaves DATA mode, and waits for the
// server's post-terminator reply.
func (m *Machine) EndData() error {
	if !m.dataMode {
		return nil
	}
	m.dataMode = false
	m.state = Streaming
	return m.transport.Send(m.writer.End())
}

// Suspend forwards to the transport only while it reports State() == Open.
func (m *Machine) Suspend() {
	if m.transport.State() == transport.Open {
		m.transport.Suspend()
	}
}

// Resume forwards to the transport only while it reports State() == Open.
func (m *Machine) Resume() {
	if m.transport.State() == transport.Open {
		m.transport.Resume()
	}
}

// Reset optionally overwrites the configured credentials, then sends RSET
// and re-runs authentication once the server acknowledges it.
func (m *Machine) Reset(newAuth *Credentials) error {
	if newAuth != nil {
		m.cfg.Auth = newAuth
	}
	m.envelope = nil
	m.state = Rset
	return m.send("RSET")
}

// Quit sends QUIT; any reply to it tears the session down.
func (m *Machine) Quit() error {
	m.state = Quit
	return m.send("QUIT")
}

// Close tears the session down immediately: it closes the transport if
// open, or calls destroy directly if the transport is already closed.
func (m *Machine) Close() error {
	if m.transport.State() != transport.Closed {
		return m.transport.Close()
	}
	m.destroy()
	return nil
}

// HandleTransportClosed must be called by the facade's OnClose handler. It
// fires OnClose unless that already happened (Close fires it directly when
// the transport is already closed); it is idempotent.
func (m *Machine) HandleTransportClosed() {
	m.destroy()
}

func (m *Machine) destroy() {
	if m.destroyed {
		return
	}
	m.destroyed = true
	m.state = Closed
	if m.OnClose != nil {
		m.OnClose()
	}
}

// Fail collapses the session the same way an internal handler error does:
// emit OnError, then close. Exported so a facade can report a failure it
// detected itself, such as a command timeout, without duplicating the
// teardown sequence.
func (m *Machine) Fail(err error) {
	m.fail(err)
}

// fail synthesizes the session-collapsing-error path common to every
// handler: drop the envelope, emit OnError, then close. No operation is
// retried internally.
func (m *Machine) fail(err error) {
	m.envelope = nil
	if m.OnError != nil {
		m.OnError(err)
	}
	_ = m.Close()
}

func (m *Machine) send(format string, args ...any) error {
	cmd := fmt.Sprintf(format, args...)
	return m.transport.Send([]byte(cmd + "\r\n"))
}
