// Package nettransport is the default transport.Duplex: a single TCP (or
// TLS-wrapped TCP) connection that dials in the background and reports
// connection lifecycle and incoming data as events rather than blocking
// calls.
package nettransport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/mohau-r/emailjs-smtp-client/transport"
)

// Config configures a Transport. Addr must include a port, as in
// "mail.example.com:587".
type Config struct {
	Addr string

	UseSSL bool
	CA     []byte
	// TLSConfig, if set, is cloned and used instead of building one from CA.
	TLSConfig *tls.Config

	DialTimeout         time.Duration
	TLSHandshakeTimeout time.Duration
}

// Transport is a transport.Duplex backed by a real net.Conn. Open dials in
// a background goroutine; OnOpen/OnError report the outcome. A second
// goroutine reads from the connection for the lifetime of the session and
// delivers OnData, and OnClose when the read fails. Other events do not come
// from that goroutine and are not serialized with it: a failed Send reports
// OnError on the caller's goroutine, and Close and connect failures report
// OnClose from a fresh goroutine. Callers that
// need single-threaded semantics across both (as session.Machine requires)
// must serialize their own entry points with a mutex; see the smtpclient
// facade.
type Transport struct {
	cfg  Config
	sink transport.EventSink

	mu      sync.Mutex
	conn    net.Conn
	state   transport.State
	paused  bool
	resumeC chan struct{}
}

// New constructs a Transport bound to sink. Call Open to begin connecting.
func New(cfg Config, sink transport.EventSink) *Transport {
	return &Transport{cfg: cfg, sink: sink, state: transport.Closed}
}

// Open dials the configured address, performing a TLS handshake up front
// when UseSSL is set. It returns immediately; completion is reported via
// OnOpen or OnError on the sink, from a background goroutine.
func (t *Transport) Open() error {
	t.mu.Lock()
	if t.state != transport.Closed {
		t.mu.Unlock()
		return errors.New("nettransport: already open")
	}
	t.state = transport.Connecting
	t.mu.Unlock()

	go t.connect()
	return nil
}

func (t *Transport) connect() {
	dialer := net.Dialer{Timeout: t.cfg.DialTimeout}

	conn, err := dialer.Dial("tcp", t.cfg.Addr)
	if err != nil {
		t.mu.Lock()
		already := t.state == transport.Closed
		t.state = transport.Closed
		t.mu.Unlock()
		t.sink.OnError(err)
		if !already {
			go t.sink.OnClose()
		}
		return
	}

	if t.cfg.UseSSL {
		tlsConn := tls.Client(conn, t.tlsConfig())
		release := withDeadline(tlsConn, t.cfg.TLSHandshakeTimeout)
		if err := tlsConn.Handshake(); err != nil {
			release()
			_ = conn.Close()
			t.mu.Lock()
			already := t.state == transport.Closed
			t.state = transport.Closed
			t.mu.Unlock()
			t.sink.OnError(err)
			if !already {
				go t.sink.OnClose()
			}
			return
		}
		release()
		conn = tlsConn
	}

	t.mu.Lock()
	t.conn = conn
	t.state = transport.Open
	t.resumeC = make(chan struct{})
	t.mu.Unlock()

	t.sink.OnOpen()
	t.readLoop(conn)
}

func (t *Transport) tlsConfig() *tls.Config {
	if t.cfg.TLSConfig != nil {
		return t.cfg.TLSConfig.Clone()
	}
	cfg := &tls.Config{}
	if len(t.cfg.CA) > 0 {
		pool := x509.NewCertPool()
		pool.AppendCertsFromPEM(t.cfg.CA)
		cfg.RootCAs = pool
	}
	return cfg
}

func (t *Transport) readLoop(conn net.Conn) {
	buf := make([]byte, 4096)
	for {
		t.waitWhileSuspended()

		n, err := conn.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			t.sink.OnData(chunk)
		}
		if err != nil {
			t.mu.Lock()
			already := t.state == transport.Closed
			t.state = transport.Closed
			t.mu.Unlock()
			if !already {
				t.sink.OnClose()
			}
			return
		}
	}
}

func (t *Transport) waitWhileSuspended() {
	t.mu.Lock()
	ch := t.resumeC
	paused := t.paused
	t.mu.Unlock()
	if paused {
		<-ch
	}
}

// Send writes data to the connection. Safe to call concurrently with the
// read loop; not safe to call concurrently with itself.
func (t *Transport) Send(data []byte) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return errors.New("nettransport: not open")
	}
	_, err := conn.Write(data)
	if err != nil {
		t.sink.OnError(err)
	}
	return err
}

// Close closes the underlying connection. Safe to call multiple times; the
// read loop's own EOF handling also reaches this state and fires OnClose
// exactly once regardless of which path gets there first. OnClose is
// delivered from a fresh goroutine rather than inline, so a caller that
// reaches Close from within its own event-handling call stack (for example
// a session.Machine reacting to a reply by closing) never re-enters its own
// lock.
func (t *Transport) Close() error {
	t.mu.Lock()
	conn := t.conn
	already := t.state == transport.Closed
	t.state = transport.Closed
	t.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	if !already {
		go t.sink.OnClose()
	}
	return nil
}

// Suspend stops delivering OnData until Resume is called.
func (t *Transport) Suspend() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != transport.Open {
		return
	}
	t.paused = true
}

// Resume resumes delivering OnData after Suspend.
func (t *Transport) Resume() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != transport.Open {
		return
	}
	if t.paused {
		t.paused = false
		close(t.resumeC)
		t.resumeC = make(chan struct{})
	}
}

// State reports the duplex's current readyState.
func (t *Transport) State() transport.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
