// Package bencher measures durations and persists them to a CSV sink from a
// background goroutine, keeping I/O off the measured code paths.
package bencher

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/weathering/files"
)

// Record is one persisted sample.
type Record struct {
	Sample  int    `csv:"sample"`
	Seconds string `csv:"seconds"`
}

// NewRecord formats d as seconds with nanosecond precision.
func NewRecord(sample int, d time.Duration) Record {
	secs := d / time.Second
	nanos := d % time.Second
	return Record{Sample: sample, Seconds: fmt.Sprintf("%d.%09d", int64(secs), int64(nanos))}
}

// Bencher owns a worker goroutine writing samples to a sink. A nil *Bencher
// is valid and discards everything.
type Bencher struct {
	wake chan struct{}
	done chan struct{}
	err  error

	// pending is unbounded so producers never wait on the sink.
	mu      sync.Mutex
	pending []time.Duration
	flushed bool
}

// New starts a worker writing to w. If w is an io.Closer it is closed when
// the bencher is flushed.
func New(w io.Writer) *Bencher {
	b := &Bencher{
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go b.worker(w)
	return b
}

// Create starts a bencher writing to a new file at path.
func Create(path string) (*Bencher, error) {
	f, err := files.Create(path)
	if err != nil {
		return nil, fmt.Errorf("creating benchmark sink: %w", err)
	}
	return New(f), nil
}

func (b *Bencher) worker(w io.Writer) {
	defer close(b.done)
	bw := bufio.NewWriter(w)
	n := 0
	for range b.wake {
		b.mu.Lock()
		batch := b.pending
		b.pending = nil
		flushed := b.flushed
		b.mu.Unlock()

		for _, d := range batch {
			if b.err != nil {
				break
			}
			records := []Record{NewRecord(n, d)}
			var err error
			if n == 0 {
				err = gocsv.Marshal(records, bw)
			} else {
				err = gocsv.MarshalWithoutHeaders(records, bw)
			}
			if err != nil {
				b.err = fmt.Errorf("writing benchmark: %w", err)
				slog.Error("benchmark sink failed", "error", err)
			}
			n++
		}
		if flushed {
			break
		}
	}
	if err := bw.Flush(); err != nil && b.err == nil {
		b.err = fmt.Errorf("flushing benchmarks: %w", err)
	}
	if c, ok := w.(io.Closer); ok {
		if err := c.Close(); err != nil && b.err == nil {
			b.err = fmt.Errorf("closing benchmark sink: %w", err)
		}
	}
}

// Bench starts a measurement that is persisted when stopped. It panics if
// the bencher has already been flushed.
func (b *Bencher) Bench() *Benchmark {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed {
		panic("bencher: Bench called after Flush")
	}
	return &Benchmark{bencher: b, start: time.Now()}
}

// Record enqueues a duration measured elsewhere.
func (b *Bencher) Record(d time.Duration) {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.flushed {
		panic("bencher: Record called after Flush")
	}
	b.pending = append(b.pending, d)
	b.signal()
}

// signal wakes the worker without blocking; a pending wake-up already
// covers every sample queued since.
func (b *Bencher) signal() {
	select {
	case b.wake <- struct{}{}:
	default:
	}
}

// Flush stops accepting samples and blocks until the worker has persisted
// all queued samples and exited. Flushing twice is a no-op.
func (b *Bencher) Flush() error {
	if b == nil {
		return nil
	}
	b.mu.Lock()
	if !b.flushed {
		b.flushed = true
		b.signal()
	}
	b.mu.Unlock()
	<-b.done
	return b.err
}

// Benchmark is a running measurement. A nil *Benchmark ignores Stop.
type Benchmark struct {
	bencher *Bencher
	start   time.Time
	once    sync.Once
}

// Stop ends the measurement and hands it to the worker. Only the first call
// records.
func (m *Benchmark) Stop() {
	if m == nil {
		return
	}
	m.once.Do(func() {
		m.bencher.Record(time.Since(m.start))
	})
}
