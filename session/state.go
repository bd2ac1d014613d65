package session

// State names the current step of the SMTP conversation. The active State
// also names the handler invoked on the next reply, realized below as a
// function-pointer table keyed by State rather than handlers bound by name.
type State int

const (
	Connecting State = iota
	Greeting
	EHLO
	HELO
	AuthLoginUser
	AuthLoginPass
	AuthXOAuth2
	AuthComplete
	Idle
	Mail
	Rcpt
	Data
	Streaming
	Rset
	Quit
	Closed

	stateCount
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "Connecting"
	case Greeting:
		return "Greeting"
	case EHLO:
		return "EHLO"
	case HELO:
		return "HELO"
	case AuthLoginUser:
		return "AuthLoginUser"
	case AuthLoginPass:
		return "AuthLoginPass"
	case AuthXOAuth2:
		return "AuthXOAuth2"
	case AuthComplete:
		return "AuthComplete"
	case Idle:
		return "Idle"
	case Mail:
		return "Mail"
	case Rcpt:
		return "Rcpt"
	case Data:
		return "Data"
	case Streaming:
		return "Streaming"
	case Rset:
		return "Rset"
	case Quit:
		return "Quit"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}
