package nettransport

import (
	"net"
	"time"
)

// withDeadline sets a timeout by deadline on conn and returns a func that
// relieves it; duration <= 0 disables the deadline instead of setting one.
func withDeadline(conn net.Conn, duration time.Duration) func() {
	if duration <= 0 {
		return func() {}
	}
	_ = conn.SetDeadline(time.Now().Add(duration))
	return func() {
		_ = conn.SetDeadline(time.Time{})
	}
}
