// package testing contains shared testing utilities
package testing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/qsync/internal/models"
	"github.com/desertthunder/qsync/internal/shared"
)

// Published is one call to [MockConn.Publish].
type Published struct {
	Channel string
	Payload []byte
}

// MockConn is a test double for services.Conn.
//
// A hanging MockConn blocks Publish and Ping until it is closed, whatever their context says,
// the way a zombie connection does.
type MockConn struct {
	mu         sync.Mutex
	publishErr error
	pingErr    error
	hang       bool
	closed     bool
	published  []Published
	publishes  int
	pings      int
	closes     int

	release chan struct{}
	once    sync.Once
}

func NewMockConn() *MockConn {
	return &MockConn{release: make(chan struct{})}
}

// NewHangingConn returns a [MockConn] whose calls never complete on their own.
func NewHangingConn() *MockConn {
	c := NewMockConn()
	c.hang = true
	return c
}

// NewClosedConn returns a [MockConn] that already reports itself closed.
func NewClosedConn() *MockConn {
	c := NewMockConn()
	c.closed = true
	return c
}

// NewFailingConn returns a [MockConn] whose calls fail immediately with err.
func NewFailingConn(err error) *MockConn {
	c := NewMockConn()
	c.publishErr = err
	c.pingErr = err
	return c
}

func (c *MockConn) wait() {
	c.mu.Lock()
	hang := c.hang
	c.mu.Unlock()
	if hang {
		<-c.release
	}
}

func (c *MockConn) Publish(ctx context.Context, channel string, payload []byte) error {
	c.mu.Lock()
	c.publishes++
	c.mu.Unlock()

	c.wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, Published{Channel: channel, Payload: append([]byte(nil), payload...)})
	return nil
}

func (c *MockConn) Ping(ctx context.Context) error {
	c.mu.Lock()
	c.pings++
	c.mu.Unlock()

	c.wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingErr
}

func (c *MockConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close marks the connection closed and releases any hung call.
func (c *MockConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.closes++
	c.mu.Unlock()

	c.once.Do(func() { close(c.release) })
	return nil
}

// SetClosed flips what [MockConn.Closed] reports without releasing anything.
func (c *MockConn) SetClosed(closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = closed
}

// SetPingErr changes the error returned by later pings.
func (c *MockConn) SetPingErr(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}

// Published returns a copy of every completed publish.
func (c *MockConn) Published() []Published {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Published(nil), c.published...)
}

// PublishCalls counts publish attempts, including ones that never returned.
func (c *MockConn) PublishCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.publishes
}

func (c *MockConn) PingCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pings
}

func (c *MockConn) CloseCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// ConnFactory hands out [MockConn] values from successive dials.
type ConnFactory struct {
	mu    sync.Mutex
	next  func() *MockConn
	err   error
	dials int
	conns []*MockConn
}

// NewConnFactory creates a factory dialing healthy connections.
func NewConnFactory() *ConnFactory {
	return &ConnFactory{next: NewMockConn}
}

// SetNext changes the constructor used by later dials.
func (f *ConnFactory) SetNext(next func() *MockConn) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next = next
}

// SetErr makes later dials fail with err; nil restores them.
func (f *ConnFactory) SetErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *ConnFactory) Dial(ctx context.Context) (*MockConn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.dials++
	if f.err != nil {
		return nil, f.err
	}
	c := f.next()
	f.conns = append(f.conns, c)
	return c, nil
}

func (f *ConnFactory) Dials() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

// Last returns the most recently dialed connection, or nil.
func (f *ConnFactory) Last() *MockConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

// FailingStore is a queue store whose backend is always down.
type FailingStore struct {
	Err error
}

func (s *FailingStore) err(op string) error {
	if s.Err != nil {
		return fmt.Errorf("%w: %s: %v", shared.ErrStoreUnavailable, op, s.Err)
	}
	return fmt.Errorf("%w: %s", shared.ErrStoreUnavailable, op)
}

func (s *FailingStore) Get(ctx context.Context, did string) (models.QueueRecord, bool, error) {
	return models.QueueRecord{}, false, s.err("get")
}

func (s *FailingStore) Update(ctx context.Context, did string, state json.RawMessage, expected *int64) (models.QueueRecord, error) {
	return models.QueueRecord{}, s.err("update")
}

func (s *FailingStore) Close() error { return nil }

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

func AssertFileExists(t *testing.T, path string) {
	t.Helper()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		t.Errorf("File does not exist: %s", path)
	}
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}

// Eventually polls cond until it holds or timeout passes.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	if !cond() {
		t.Fatalf("condition not met within %v: %s", timeout, msg)
	}
}
