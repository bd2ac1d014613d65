package smtpclient

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohau-r/emailjs-smtp-client/logring"
	"github.com/mohau-r/emailjs-smtp-client/reply"
	"github.com/mohau-r/emailjs-smtp-client/session"
	"github.com/mohau-r/emailjs-smtp-client/transporttest"
)

// newTestClient builds a Client the way New does, but backed by a
// transporttest.FakeDuplex instead of a real nettransport.Transport, so
// tests can drive the facade without a socket.
func newTestClient(opts ...Option) (*Client, *transporttest.FakeDuplex) {
	o := defaultOptions("localhost", 25)
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

	fd := transporttest.NewFakeDuplex(&clientSink{c: c})
	c.duplex = fd
	mt := &machineTransport{duplex: c.duplex, log: c.log}
	mt.onSend = c.armCommandTimeout
	c.machine = session.New(cfg, mt)
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

	return c, fd
}

func TestClient_ConnectAndGreet(t *testing.T) {
	c, fd := newTestClient(WithName("localhost"))

	idle := false
	c.OnIdle = func() { idle = true }

	require.NoError(t, c.Connect())
	fd.Feed([]byte("220 hi\r\n250-smtp.example.com\r\n250 ok\r\n"))

	assert.True(t, idle)
	assert.Equal(t, session.Idle, c.State())
}

func TestClient_FullTransaction(t *testing.T) {
	c, fd := newTestClient()

	var readyFailed []string
	var done bool
	var success bool
	c.OnReady = func(failed []string) { readyFailed = failed }
	c.OnDone = func(ok bool) { done, success = true, ok }

	require.NoError(t, c.Connect())
	fd.Feed([]byte("220 hi\r\n250 ok\r\n"))

	require.NoError(t, c.UseEnvelope("sender@example.com", []string{"r@example.com"}))
	fd.Feed([]byte("250 ok\r\n")) // MAIL
	fd.Feed([]byte("250 ok\r\n")) // RCPT
	fd.Feed([]byte("354 go ahead\r\n"))

	require.NoError(t, c.Send([]byte("Subject: x\r\n\r\n.Body")))
	require.NoError(t, c.End())
	fd.Feed([]byte("250 queued\r\n"))

	assert.Empty(t, readyFailed)
	assert.True(t, done)
	assert.True(t, success)

	sent := fd.SentStrings()
	require.NotEmpty(t, sent)
	last := sent[len(sent)-1]
	assert.Equal(t, "\r\n.\r\n", last)

	var body string
	for _, s := range sent {
		if s == "Subject: x\r\n\r\n..Body" {
			body = s
		}
	}
	assert.Equal(t, "Subject: x\r\n\r\n..Body", body)
}

func TestClient_LogRingRecordsBothDirections(t *testing.T) {
	c, fd := newTestClient(WithLogLength(10))

	require.NoError(t, c.Connect())
	fd.Feed([]byte("220 hi\r\n250 ok\r\n"))

	entries := c.Log().Entries()
	require.NotEmpty(t, entries)

	var sawClient, sawServer bool
	for _, e := range entries {
		if e.Direction == logring.Client {
			sawClient = true
		}
		if e.Direction == logring.Server {
			sawServer = true
		}
	}
	assert.True(t, sawClient)
	assert.True(t, sawServer)
}

func TestClient_CommandTimeoutCollapsesSession(t *testing.T) {
	c, fd := newTestClient(WithCommandTimeout(20 * time.Millisecond))

	errCh := make(chan error, 1)
	closedCh := make(chan struct{}, 1)
	c.OnError = func(err error) { errCh <- err }
	c.OnClose = func() { closedCh <- struct{}{} }

	require.NoError(t, c.Connect())
	fd.Feed([]byte("220 hi\r\n")) // arms the timeout once EHLO is sent

	select {
	case err := <-errCh:
		require.Error(t, err)
		assert.Contains(t, err.Error(), "timed out")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for command timeout to fire")
	}

	select {
	case <-closedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close")
	}
}

func TestClient_CloseIsIdempotentAndFiresOnClose(t *testing.T) {
	c, _ := newTestClient()
	require.NoError(t, c.Connect())

	closedCh := make(chan struct{}, 4)
	c.OnClose = func() { closedCh <- struct{}{} }

	require.NoError(t, c.Close())
	select {
	case <-closedCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for close")
	}
	require.NoError(t, c.Close())

	select {
	case <-closedCh:
		t.Fatal("OnClose fired a second time")
	case <-time.After(50 * time.Millisecond):
	}
}
