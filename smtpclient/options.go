package smtpclient

import (
	"crypto/tls"
	"time"

	"github.com/mohau-r/emailjs-smtp-client/session"
)

// Options configures a Client. Use New with functional Options below rather
// than constructing this directly; the zero value is not ready to use.
type Options struct {
	host string
	port int

	useSSL          bool
	ca              []byte
	tlsConfig       *tls.Config
	name            string
	auth            *session.Credentials
	authMethod      string
	disableEscaping bool
	lmtp            bool
	logLength       int

	dialTimeout         time.Duration
	tlsHandshakeTimeout time.Duration
	commandTimeout      time.Duration
}

func defaultOptions(host string, port int) Options {
	return Options{
		host:                host,
		port:                port,
		name:                "localhost",
		dialTimeout:         30 * time.Second,
		tlsHandshakeTimeout: 30 * time.Second,
		commandTimeout:      5 * time.Minute,
	}
}

// Option configures a Client at construction time.
type Option func(*Options)

// WithSSL dials directly over TLS instead of plaintext.
func WithSSL(useSSL bool) Option {
	return func(o *Options) { o.useSSL = useSSL }
}

// WithCA sets a PEM-encoded CA bundle used to verify the server's
// certificate, in place of the system pool.
func WithCA(ca []byte) Option {
	return func(o *Options) { o.ca = ca }
}

// WithTLSConfig sets the full TLS config to use, overriding WithCA.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(o *Options) { o.tlsConfig = cfg }
}

// WithName sets the EHLO/HELO/LHLO argument. Defaults to "localhost".
func WithName(name string) Option {
	return func(o *Options) { o.name = name }
}

// WithAuth configures AUTH with the given credentials.
func WithAuth(user, pass string) Option {
	return func(o *Options) { o.auth = &session.Credentials{User: user, Pass: pass} }
}

// WithXOAuth2 configures AUTH XOAUTH2 with a bearer token.
func WithXOAuth2(user, token string) Option {
	return func(o *Options) {
		o.auth = &session.Credentials{User: user, Token: token}
		o.authMethod = "XOAUTH2"
	}
}

// WithAuthMethod overrides capability-based mechanism selection: "PLAIN",
// "LOGIN", or "XOAUTH2".
func WithAuthMethod(method string) Option {
	return func(o *Options) { o.authMethod = method }
}

// WithDisableEscaping disables DATA dot-stuffing, for callers that already
// guarantee a dot-safe body.
func WithDisableEscaping(disabled bool) Option {
	return func(o *Options) { o.disableEscaping = disabled }
}

// WithLMTP substitutes LHLO for EHLO.
func WithLMTP(lmtp bool) Option {
	return func(o *Options) { o.lmtp = lmtp }
}

// WithLogLength sets the debug log ring's capacity; 0 (the default)
// disables logging entirely.
func WithLogLength(n int) Option {
	return func(o *Options) { o.logLength = n }
}

// WithDialTimeout sets the time to wait for the TCP dial to succeed.
func WithDialTimeout(d time.Duration) Option {
	return func(o *Options) { o.dialTimeout = d }
}

// WithTLSHandshakeTimeout sets the time to wait for the TLS handshake to
// succeed, when WithSSL is set.
func WithTLSHandshakeTimeout(d time.Duration) Option {
	return func(o *Options) { o.tlsHandshakeTimeout = d }
}

// WithCommandTimeout sets how long the client waits for a reply to any
// command it sends, including the 3xx reply to DATA, before collapsing the
// session with a timeout error. 0 disables the timeout.
func WithCommandTimeout(d time.Duration) Option {
	return func(o *Options) { o.commandTimeout = d }
}
