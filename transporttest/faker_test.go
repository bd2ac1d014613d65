package transporttest

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSink struct {
	mu     sync.Mutex
	opened bool
	data   [][]byte
	errs   []error
	closed int
	closeCh chan struct{}
}

func newRecordingSink() *recordingSink {
	return &recordingSink{closeCh: make(chan struct{}, 8)}
}

func (r *recordingSink) OnOpen() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.opened = true
}
func (r *recordingSink) OnData(p []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data = append(r.data, p)
}
func (r *recordingSink) OnDrain() {}
func (r *recordingSink) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}
func (r *recordingSink) OnClose() {
	r.mu.Lock()
	r.closed++
	r.mu.Unlock()
	r.closeCh <- struct{}{}
}

func (r *recordingSink) waitClosed(t *testing.T) {
	select {
	case <-r.closeCh:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for OnClose")
	}
}

func TestFakeDuplex_OpenAndFeed(t *testing.T) {
	sink := newRecordingSink()
	d := NewFakeDuplex(sink)

	require.NoError(t, d.Open())
	assert.True(t, sink.opened)

	d.Feed([]byte("220 hi\r\n"))
	require.Len(t, sink.data, 1)
	assert.Equal(t, "220 hi\r\n", string(sink.data[0]))
}

func TestFakeDuplex_OpenErr(t *testing.T) {
	sink := newRecordingSink()
	d := NewFakeDuplex(sink)
	d.OpenErr = errors.New("boom")

	require.Error(t, d.Open())
	require.Len(t, sink.errs, 1)
	assert.False(t, sink.opened)
	sink.waitClosed(t)
}

func TestFakeDuplex_SendRecordsAndCloseIsIdempotent(t *testing.T) {
	sink := newRecordingSink()
	d := NewFakeDuplex(sink)
	require.NoError(t, d.Open())

	require.NoError(t, d.Send([]byte("EHLO x\r\n")))
	require.NoError(t, d.Close())
	sink.waitClosed(t)
	require.NoError(t, d.Close())

	assert.Equal(t, []string{"EHLO x\r\n"}, d.SentStrings())
	sink.mu.Lock()
	assert.Equal(t, 1, sink.closed)
	sink.mu.Unlock()
}

func TestFakeDuplex_SuspendResumeCounts(t *testing.T) {
	sink := newRecordingSink()
	d := NewFakeDuplex(sink)
	d.Suspend()
	d.Suspend()
	d.Resume()
	assert.Equal(t, 2, d.Susps)
	assert.Equal(t, 1, d.Resms)
}
