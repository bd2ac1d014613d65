package session

// Envelope is the SMTP-level sender/recipient set, distinct from the
// message's own header fields. RcptQueue starts as a copy of To; every
// RCPT reply moves its head into either RcptSent or RcptFailed until the
// queue drains.
type Envelope struct {
	From       string
	To         []string
	RcptQueue  []string
	RcptFailed []string
	RcptSent   []string
	Started    bool

	// pendingRcpt is the address most recently sent via RCPT TO, awaiting
	// its reply; it is resolved into RcptSent or RcptFailed by handleRcpt.
	pendingRcpt string
}

// NewEnvelope builds an Envelope from a sender and recipient list, seeding
// RcptQueue with a copy of to so later mutation can't alias the caller's
// slice.
func NewEnvelope(from string, to []string) *Envelope {
	queue := make([]string, len(to))
	copy(queue, to)
	return &Envelope{
		From:      from,
		To:        to,
		RcptQueue: queue,
	}
}

// conserved reports whether the |RcptQueue|+|RcptSent|+|RcptFailed| == |To|
// invariant holds, used only by tests.
func (e *Envelope) conserved() bool {
	return len(e.RcptQueue)+len(e.RcptSent)+len(e.RcptFailed) == len(e.To)
}
