package session

import (
	"regexp"
	"strings"

	"github.com/mohau-r/emailjs-smtp-client/auth"
	"github.com/mohau-r/emailjs-smtp-client/reply"
	"github.com/mohau-r/emailjs-smtp-client/smtperr"
)

var authCapability = regexp.MustCompile(`(?i)^AUTH\s+(.+)$`)

var handlers [stateCount]handlerFunc

func init() {
	handlers[Greeting] = handleGreeting
	handlers[EHLO] = handleEHLO
	handlers[HELO] = handleHELO
	handlers[AuthLoginUser] = handleAuthLoginUser
	handlers[AuthLoginPass] = handleAuthLoginPass
	handlers[AuthXOAuth2] = handleAuthXOAuth2
	handlers[AuthComplete] = handleAuthComplete
	handlers[Idle] = handleIdle
	handlers[Mail] = handleMail
	handlers[Rcpt] = handleRcpt
	handlers[Data] = handleData
	handlers[Streaming] = handleStreaming
	handlers[Rset] = handleRset
	// Quit's reply is handled inline by closing regardless of its content;
	// see handleQuit.
	handlers[Quit] = handleQuit
}

func handleGreeting(m *Machine, r reply.Reply) {
	if r.Code != 220 {
		m.fail(smtperr.Protocol("invalid greeting: "+r.StatusLine, r.Code))
		return
	}
	if strings.ContainsAny(m.cfg.Name, "\r\n") {
		m.fail(smtperr.Protocol("EHLO/HELO name must not contain CR or LF", 0))
		return
	}
	verb := "EHLO"
	if m.cfg.LMTP {
		verb = "LHLO"
	}
	m.state = EHLO
	if err := m.send("%s %s", verb, m.cfg.Name); err != nil {
		m.fail(smtperr.FromTransport(err))
	}
}

func handleEHLO(m *Machine, r reply.Reply) {
	if !r.Success {
		m.state = HELO
		if err := m.send("HELO %s", m.cfg.Name); err != nil {
			m.fail(smtperr.FromTransport(err))
		}
		return
	}

	for _, line := range r.Lines {
		match := authCapability.FindStringSubmatch(line)
		if match == nil {
			continue
		}
		for _, mech := range strings.Fields(match[1]) {
			m.supportedAuth[strings.ToUpper(mech)] = struct{}{}
		}
	}

	authenticate(m)
}

func handleHELO(m *Machine, r reply.Reply) {
	if !r.Success {
		m.fail(smtperr.Protocol(r.StatusLine, r.Code))
		return
	}
	authenticate(m)
}

// authenticate selects a mechanism and issues its first command, or
// transitions straight to Idle if authentication is not configured.
func authenticate(m *Machine) {
	if m.cfg.Auth == nil {
		goIdle(m)
		return
	}

	mech := m.cfg.AuthMethod
	if mech == "" {
		switch {
		case m.hasAuth("PLAIN"):
			mech = "PLAIN"
		case m.hasAuth("LOGIN"):
			mech = "LOGIN"
		default:
			mech = "PLAIN"
		}
	}

	var err error
	switch strings.ToUpper(mech) {
	case "LOGIN":
		m.state = AuthLoginUser
		err = m.send("%s", auth.LoginStep1())
	case "XOAUTH2":
		m.state = AuthXOAuth2
		err = m.send("AUTH XOAUTH2 %s", auth.XOAuth2(m.cfg.Auth.User, m.cfg.Auth.Token))
	default: // PLAIN
		m.state = AuthComplete
		err = m.send("AUTH PLAIN %s", auth.Plain(m.cfg.Auth.User, m.cfg.Auth.Pass))
	}
	if err != nil {
		m.fail(smtperr.FromTransport(err))
	}
}

func (m *Machine) hasAuth(mech string) bool {
	_, ok := m.supportedAuth[mech]
	return ok
}

func handleAuthLoginUser(m *Machine, r reply.Reply) {
	if r.Code != 334 {
		m.fail(smtperr.Auth(r.StatusLine, r.Code))
		return
	}
	decoded, err := auth.DecodeChallenge(r.StatusLine)
	if err != nil {
		m.fail(err)
		return
	}
	if err := auth.ExpectLoginChallenge(decoded, "Username:"); err != nil {
		m.fail(err)
		return
	}
	m.state = AuthLoginPass
	if err := m.send("%s", auth.LoginStep2(m.cfg.Auth.User)); err != nil {
		m.fail(smtperr.FromTransport(err))
	}
}

func handleAuthLoginPass(m *Machine, r reply.Reply) {
	if r.Code != 334 {
		m.fail(smtperr.Auth(r.StatusLine, r.Code))
		return
	}
	decoded, err := auth.DecodeChallenge(r.StatusLine)
	if err != nil {
		m.fail(err)
		return
	}
	if err := auth.ExpectLoginChallenge(decoded, "Password:"); err != nil {
		m.fail(err)
		return
	}
	m.state = AuthComplete
	if err := m.send("%s", auth.LoginStep3(m.cfg.Auth.Pass)); err != nil {
		m.fail(smtperr.FromTransport(err))
	}
}

func handleAuthXOAuth2(m *Machine, r reply.Reply) {
	if r.Success {
		handleAuthComplete(m, r)
		return
	}
	if r.Code != 334 {
		m.fail(smtperr.Auth(r.StatusLine, r.Code))
		return
	}
	// RFC 7628 §3.1: on failure the server sends a 334 with a JSON error
	// payload and expects an empty response before it will issue the
	// final rejection.
	m.state = AuthComplete
	if err := m.send(""); err != nil {
		m.fail(smtperr.FromTransport(err))
	}
}

func handleAuthComplete(m *Machine, r reply.Reply) {
	if !r.Success {
		m.fail(smtperr.Auth(r.StatusLine, r.Code))
		return
	}
	m.authenticatedAs = m.cfg.Auth.User
	goIdle(m)
}

func goIdle(m *Machine) {
	m.state = Idle
	if m.OnIdle != nil {
		m.OnIdle()
	}
}

func handleIdle(*Machine, reply.Reply) {
	// Idle is a terminal no-op state; the caller drives the next action via
	// UseEnvelope or Quit, not via a server reply.
}

func handleMail(m *Machine, r reply.Reply) {
	if !r.Success {
		m.fail(smtperr.Envelope(r.StatusLine))
		return
	}
	if len(m.envelope.RcptQueue) == 0 {
		m.fail(smtperr.ErrNoRecipients)
		return
	}
	next := m.envelope.RcptQueue[0]
	m.envelope.RcptQueue = m.envelope.RcptQueue[1:]
	m.state = Rcpt
	if err := m.send("RCPT TO:<%s>", next); err != nil {
		m.fail(smtperr.FromTransport(err))
		return
	}
	// The address just sent is resolved by the next Rcpt-state reply,
	// see handleRcpt.
	m.envelope.pendingRcpt = next
}

func handleRcpt(m *Machine, r reply.Reply) {
	env := m.envelope
	if r.Success {
		env.RcptSent = append(env.RcptSent, env.pendingRcpt)
	} else {
		env.RcptFailed = append(env.RcptFailed, env.pendingRcpt)
	}
	env.pendingRcpt = ""

	if len(env.RcptQueue) > 0 {
		next := env.RcptQueue[0]
		env.RcptQueue = env.RcptQueue[1:]
		env.pendingRcpt = next
		if err := m.send("RCPT TO:<%s>", next); err != nil {
			m.fail(smtperr.FromTransport(err))
		}
		return
	}

	if len(env.RcptFailed) == len(env.To) {
		m.fail(smtperr.ErrAllRecipientsRejected)
		return
	}

	m.state = Data
	if err := m.send("DATA"); err != nil {
		m.fail(smtperr.FromTransport(err))
	}
}

func handleData(m *Machine, r reply.Reply) {
	if r.Code != 250 && r.Code != 354 {
		m.fail(smtperr.Envelope(r.StatusLine))
		return
	}
	m.dataMode = true
	m.state = Idle
	if m.OnReady != nil {
		m.OnReady(append([]string(nil), m.envelope.RcptFailed...))
	}
}

func handleStreaming(m *Machine, r reply.Reply) {
	m.envelope = nil
	m.state = Idle
	if m.OnDone != nil {
		m.OnDone(r.Success)
	}
	if m.state == Idle && m.OnIdle != nil {
		m.OnIdle()
	}
}

func handleRset(m *Machine, r reply.Reply) {
	if !r.Success {
		m.fail(smtperr.Protocol(r.StatusLine, r.Code))
		return
	}
	m.authenticatedAs = ""
	authenticate(m)
}

func handleQuit(m *Machine, _ reply.Reply) {
	_ = m.Close()
}
