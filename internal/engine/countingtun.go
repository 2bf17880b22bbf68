package engine

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"golang.zx2c4.com/wireguard/tun"
)

// countingTUN wraps a tun.Device to track aggregate byte counters for stats
// reporting and to surface a fatal read/write error exactly once, the way
// kakuremichi-kakuremichi-agent's device.go treats tun.Close()/EOF as the
// signal a tunnel's underlying interface has gone away out from under it.
type countingTUN struct {
	tun.Device

	txBytes atomic.Uint64
	rxBytes atomic.Uint64

	once     sync.Once
	doneCh   chan struct{}
	fatalErr atomic.Value // error
}

func newCountingTUN(d tun.Device) *countingTUN {
	return &countingTUN{
		Device: d,
		doneCh: make(chan struct{}),
	}
}

// Read pulls a plaintext packet off the TUN device on its way out to the
// peer (the engine will encrypt and send it), so it counts toward tx.
func (c *countingTUN) Read(bufs [][]byte, sizes []int, offset int) (int, error) {
	n, err := c.Device.Read(bufs, sizes, offset)
	for i := 0; i < n; i++ {
		c.txBytes.Add(uint64(sizes[i]))
	}
	if err != nil {
		c.markFatal(err)
	}
	return n, err
}

// Write delivers a decrypted packet arriving from a peer into the TUN
// device, so it counts toward rx.
func (c *countingTUN) Write(bufs [][]byte, offset int) (int, error) {
	n, err := c.Device.Write(bufs, offset)
	for _, b := range bufs {
		c.rxBytes.Add(uint64(len(b) - offset))
	}
	if err != nil {
		c.markFatal(err)
	}
	return n, err
}

func (c *countingTUN) Close() error {
	err := c.Device.Close()
	c.markFatal(io.EOF)
	return err
}

// markFatal records the first terminal TUN error and closes doneCh so
// watchers relying on Done() can react without polling.
func (c *countingTUN) markFatal(err error) {
	if !isFatalTUNError(err) {
		return
	}
	c.once.Do(func() {
		c.fatalErr.Store(err)
		close(c.doneCh)
	})
}

// Done returns a channel that closes when the TUN device hits a terminal
// error (closed, or the underlying OS handle disappeared).
func (c *countingTUN) Done() <-chan struct{} {
	return c.doneCh
}

// FatalErr returns the error that triggered Done, if any.
func (c *countingTUN) FatalErr() error {
	err, _ := c.fatalErr.Load().(error)
	return err
}

func (c *countingTUN) TxBytes() uint64 {
	return c.txBytes.Load()
}

func (c *countingTUN) RxBytes() uint64 {
	return c.rxBytes.Load()
}

func isFatalTUNError(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, os.ErrClosed)
}
