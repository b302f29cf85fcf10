// Package buffer implements the producer/consumer queue of IQ
// sample vectors that decouples the device callback thread from the
// processing/network thread.
package buffer

import "sync"

// Sample is a single complex baseband sample. Width promotion (8->16 bit)
// is the caller's concern; the buffer only ever moves already-typed
// vectors around.
type Sample = complex64

// Buffer is a FIFO of sample vectors with no size cap. It is safe for concurrent
// use by multiple producers and consumers, though in practice iqfeedd
// always uses it single-producer, single-consumer: one device callback
// pushing, one worker pulling.
//
// There is no internal failure mode. A caller that pushes faster than
// the consumer drains grows the backing queue without bound; detecting
// that condition (e.g. "queued samples exceeds 10x the sample rate") is
// the caller's job via QueuedSamples.
type Buffer struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	queue    [][]Sample
	samples  int
	ended    bool
}

// New creates an empty Buffer.
func New() *Buffer {
	b := &Buffer{}
	b.notEmpty = sync.NewCond(&b.mu)
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// Push appends a sample vector to the queue. It never blocks and never
// drops data; memory growth under sustained overrun is the caller's
// responsibility to detect via QueuedSamples.
func (b *Buffer) Push(vec []Sample) {
	if len(vec) == 0 {
		return
	}
	b.mu.Lock()
	b.queue = append(b.queue, vec)
	b.samples += len(vec)
	b.mu.Unlock()
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// Pull removes and returns the oldest queued vector, blocking until one
// is available or PushEnd has been called. On end-of-stream it returns a
// nil (empty) vector.
func (b *Buffer) Pull() []Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.queue) == 0 && !b.ended {
		b.notEmpty.Wait()
	}
	if len(b.queue) == 0 {
		return nil
	}
	vec := b.queue[0]
	b.queue = b.queue[1:]
	b.samples -= len(vec)
	b.notFull.Broadcast()
	return vec
}

// PushEnd signals end-of-stream: any blocked or future Pull returns
// immediately with an empty vector once the queue drains.
func (b *Buffer) PushEnd() {
	b.mu.Lock()
	b.ended = true
	b.mu.Unlock()
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// Ended reports whether PushEnd has been called and the queue has fully
// drained (i.e. a further Pull would return immediately empty).
func (b *Buffer) Ended() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ended && len(b.queue) == 0
}

// QueuedSamples returns the number of samples (not vectors) currently
// queued, letting callers detect input overrun.
func (b *Buffer) QueuedSamples() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.samples
}

// WaitFill blocks until the queued sample count reaches min, or
// end-of-stream is signalled. It is used to avoid starvation hiccups: a
// consumer that just emptied the buffer waits for it to build back up to
// a nominal level rather than thrashing on near-empty pulls.
func (b *Buffer) WaitFill(min int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for b.samples < min && !b.ended {
		b.notFull.Wait()
	}
}
