// Package iobuffer implements the bounded byte buffer sitting between the
// logical layer and the FEC layer (SPEC_FULL.md §4.5): a doubly-bounded FIFO
// of fixed-size blocks, shared by two producer/consumer modes (one full
// K*4096 block at a time for FEC frames, or an arbitrary byte stream packed
// across block boundaries for the raw serializer output).
//
// Every blocking wait here times out after one second so a caller can
// re-poll a status word between waits (§4.10, §5) instead of blocking
// forever past an abort. That is modeled with time.AfterFunc nudging the
// condition variable, the common Go idiom for a "cond.Wait with timeout".
package iobuffer

import (
	"sync"
	"time"

	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// PollInterval is how often a blocked Put/Get wakes up to re-check for
// cancellation, matching the one-second poll the rest of the engine uses.
const PollInterval = time.Second

// block is one fixed-size slot. fill tracks how many of BlockSize bytes are
// valid, since the tail block in raw-byte mode is usually partially filled.
type block struct {
	data []byte
	fill int
}

// Buffer is a bounded FIFO of fixed-size blocks.
type Buffer struct {
	blockSize int
	maxBlocks int

	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	blocks []*block
	readOff int // byte offset already consumed from blocks[0] in raw-byte mode

	eob    bool // end-of-buffer: no more data will ever be written
	closed bool

	// Cancel, when non-nil, is polled on every wakeup; if it returns true
	// blocked Put/Get calls return ErrCancelled immediately.
	Cancel func() bool
}

// New builds a Buffer holding at most maxBlocks blocks of blockSize bytes
// each.
func New(blockSize, maxBlocks int) *Buffer {
	b := &Buffer{blockSize: blockSize, maxBlocks: maxBlocks}
	b.notEmpty = sync.NewCond(&b.mu)
	b.notFull = sync.NewCond(&b.mu)
	return b
}

// ErrCancelled is returned from a blocked call when Cancel starts reporting
// true.
var ErrCancelled = errs.New(errs.Closed, "iobuffer operation cancelled")

// waitTimeout blocks on cond for at most PollInterval before returning, so
// the caller's loop gets a chance to re-check its predicate (and Cancel).
func (b *Buffer) waitTimeout(cond *sync.Cond) {
	timer := time.AfterFunc(PollInterval, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}

func (b *Buffer) cancelled() bool {
	return b.Cancel != nil && b.Cancel()
}

// PutBlock pushes one fully-populated block (FEC mode: exactly blockSize
// bytes). It blocks while the buffer is at capacity.
func (b *Buffer) PutBlock(data []byte) error {
	if len(data) != b.blockSize {
		return errs.New(errs.InvalidArg, "block has wrong size for this buffer")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.blocks) >= b.maxBlocks {
		if b.cancelled() {
			return ErrCancelled
		}
		if b.closed {
			return errs.New(errs.Closed, "iobuffer closed")
		}
		b.waitTimeout(b.notFull)
	}
	if b.closed {
		return errs.New(errs.Closed, "iobuffer closed")
	}
	cp := make([]byte, b.blockSize)
	copy(cp, data)
	b.blocks = append(b.blocks, &block{data: cp, fill: b.blockSize})
	b.notEmpty.Broadcast()
	return nil
}

// GetBlock pops one full block. It blocks until a full block is available
// or the buffer reaches end-of-buffer with nothing left, in which case ok
// is false.
func (b *Buffer) GetBlock() (data []byte, ok bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for {
		if len(b.blocks) > 0 && (b.blocks[0].fill == b.blockSize || b.eob) {
			blk := b.blocks[0]
			b.blocks = b.blocks[1:]
			b.readOff = 0
			b.notFull.Broadcast()
			out := make([]byte, blk.fill)
			copy(out, blk.data[:blk.fill])
			return out, true, nil
		}
		if b.eob && len(b.blocks) == 0 {
			return nil, false, nil
		}
		if b.cancelled() {
			return nil, false, ErrCancelled
		}
		if b.closed {
			return nil, false, errs.New(errs.Closed, "iobuffer closed")
		}
		b.waitTimeout(b.notEmpty)
	}
}

// WriteBytes appends an arbitrary byte sequence in raw-byte mode, packing
// it into the tail block and allocating new blocks as needed. It blocks
// when appending would require more than maxBlocks blocks.
func (b *Buffer) WriteBytes(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for len(data) > 0 {
		if len(b.blocks) == 0 || b.blocks[len(b.blocks)-1].fill == b.blockSize {
			for len(b.blocks) >= b.maxBlocks {
				if b.cancelled() {
					return ErrCancelled
				}
				if b.closed {
					return errs.New(errs.Closed, "iobuffer closed")
				}
				b.waitTimeout(b.notFull)
			}
			if b.closed {
				return errs.New(errs.Closed, "iobuffer closed")
			}
			b.blocks = append(b.blocks, &block{data: make([]byte, b.blockSize)})
		}
		tail := b.blocks[len(b.blocks)-1]
		n := copy(tail.data[tail.fill:], data)
		tail.fill += n
		data = data[n:]
		b.notEmpty.Broadcast()
	}
	return nil
}

// ReadBytes reads exactly n bytes across block boundaries in raw-byte mode.
// It blocks until n bytes are available or end-of-buffer is reached with
// fewer than n bytes remaining, in which case it returns what is left and
// ok=false.
func (b *Buffer) ReadBytes(n int) (data []byte, ok bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, 0, n)
	for len(out) < n {
		if len(b.blocks) == 0 {
			if b.eob {
				return out, len(out) == n, nil
			}
			if b.cancelled() {
				return nil, false, ErrCancelled
			}
			if b.closed {
				return nil, false, errs.New(errs.Closed, "iobuffer closed")
			}
			b.waitTimeout(b.notEmpty)
			continue
		}
		head := b.blocks[0]
		available := head.fill - b.readOff
		if available <= 0 {
			// Tail block still being written and currently empty past
			// readOff; wait for more unless this is the final block.
			if b.eob {
				b.blocks = b.blocks[1:]
				b.readOff = 0
				b.notFull.Broadcast()
				continue
			}
			if b.cancelled() {
				return nil, false, ErrCancelled
			}
			b.waitTimeout(b.notEmpty)
			continue
		}
		take := n - len(out)
		if take > available {
			take = available
		}
		out = append(out, head.data[b.readOff:b.readOff+take]...)
		b.readOff += take
		if b.readOff == b.blockSize || (b.eob && b.readOff == head.fill) {
			b.blocks = b.blocks[1:]
			b.readOff = 0
			b.notFull.Broadcast()
		}
	}
	return out, true, nil
}

// SetEndOfBuffer marks no more data will ever be written: the tail block
// becomes drainable regardless of fill, and blocked readers wake up to
// observe end-of-stream once everything queued has been drained.
func (b *Buffer) SetEndOfBuffer() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.eob = true
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// EndOfBuffer reports whether SetEndOfBuffer has been called.
func (b *Buffer) EndOfBuffer() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.eob
}

// Close unblocks every waiter with an error; used on abort.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.notEmpty.Broadcast()
	b.notFull.Broadcast()
}

// Len reports the current number of blocks queued (full or partial).
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blocks)
}
