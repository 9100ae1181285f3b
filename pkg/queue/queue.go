// Package queue implements the bounded, order-preserving work queue between
// the walker/serializer and the volume writer (SPEC_FULL.md §4.6): headers
// and data blocks are enqueued in the order they must appear in the
// archive, but compressor workers may finish blocks out of order. The
// queue only reveals items to its single consumer once the head of line is
// DONE, so archive byte order tracks enqueue order regardless of worker
// scheduling (§5, "Ordering guarantees").
package queue

import (
	"sync"
	"time"

	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
	"github.com/go-fsarchiver/fsarchiver/pkg/dictionary"
	"github.com/go-fsarchiver/fsarchiver/pkg/errs"
)

// Status is an item's place in the compress/decompress lifecycle.
type Status int

const (
	StatusTodo Status = iota
	StatusInProgress
	StatusDone
)

// Kind distinguishes a header item from a data-block item.
type Kind int

const (
	KindHeader Kind = iota
	KindBlock
)

// Header is the payload of a KindHeader item.
type Header struct {
	Dico     *dictionary.Dictionary
	HeadType consts.HeadType
	FSIndex  uint16
}

// BlockInfo is the payload of a KindBlock item: the compressor pool reads
// Raw, produces Archived plus the accounting fields, and the volume writer
// consumes Archived once the item is DONE.
type BlockInfo struct {
	Raw            []byte
	Archived       []byte
	Offset         uint64 // original offset within the source file, large-file case
	RealSize       uint32
	ArchiveSize    uint32
	CompressedSize uint32
	Checksum       uint32
	CompressAlgo   byte
	EncryptAlgo    byte
	// Meta carries producer-defined context (e.g. which file this block
	// belongs to) opaque to the queue itself.
	Meta interface{}
	// DecodeErr is set by the decompressor pool instead of failing the
	// whole pool when one block's checksum or payload is corrupt, so a
	// restore can truncate the one affected file and continue (§4.9
	// "Resynchronization") rather than aborting every other file in
	// flight.
	DecodeErr error
}

// Item is one queue entry.
type Item struct {
	kind   Kind
	status Status
	header *Header
	block  *BlockInfo
}

func (it *Item) Kind() Kind       { return it.kind }
func (it *Item) Status() Status   { return it.status }
func (it *Item) Header() *Header  { return it.header }
func (it *Item) Block() *BlockInfo { return it.block }

// PollInterval bounds how long a blocked call waits before re-checking
// Cancel, matching the rest of the engine's one-second poll (§4.10, §5).
const PollInterval = time.Second

// Queue is a bounded FIFO of *Item, ordered by insertion.
type Queue struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond

	items  []*Item
	maxLen int

	eoq    bool
	closed bool

	// Cancel, when non-nil, aborts blocked calls once it reports true.
	Cancel func() bool
}

// New builds a Queue bounded at maxLen items.
func New(maxLen int) *Queue {
	q := &Queue{maxLen: maxLen}
	q.notEmpty = sync.NewCond(&q.mu)
	q.notFull = sync.NewCond(&q.mu)
	return q
}

var ErrCancelled = errs.New(errs.Closed, "queue operation cancelled")

func (q *Queue) waitTimeout(cond *sync.Cond) {
	timer := time.AfterFunc(PollInterval, cond.Broadcast)
	defer timer.Stop()
	cond.Wait()
}

func (q *Queue) cancelled() bool {
	return q.Cancel != nil && q.Cancel()
}

func (q *Queue) waitForSpace() error {
	for len(q.items) >= q.maxLen {
		if q.cancelled() {
			return ErrCancelled
		}
		if q.closed {
			return errs.New(errs.Closed, "queue closed")
		}
		q.waitTimeout(q.notFull)
	}
	if q.closed {
		return errs.New(errs.Closed, "queue closed")
	}
	return nil
}

// EnqueueHeader appends a header item, immediately DONE since headers carry
// no compression work.
func (q *Queue) EnqueueHeader(dico *dictionary.Dictionary, headType consts.HeadType, fsIndex uint16) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.waitForSpace(); err != nil {
		return err
	}
	q.items = append(q.items, &Item{
		kind:   KindHeader,
		status: StatusDone,
		header: &Header{Dico: dico, HeadType: headType, FSIndex: fsIndex},
	})
	q.notEmpty.Broadcast()
	return nil
}

// EnqueueBlock appends a data-block item with the given initial status.
// status=StatusTodo means a compressor or decompressor pool still has to
// process the block (save enqueues raw blocks this way, and restore's
// deserializer enqueues archived blocks this way for the decompressor pool
// to complete); status=StatusDone means the block needs no further work.
func (q *Queue) EnqueueBlock(info *BlockInfo, status Status) (*Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.waitForSpace(); err != nil {
		return nil, err
	}
	item := &Item{kind: KindBlock, status: status, block: info}
	q.items = append(q.items, item)
	q.notEmpty.Broadcast()
	return item, nil
}

// NextPendingBlock finds the first TODO block item, atomically marks it
// IN_PROGRESS, and returns it to the caller for compression. It does not
// block; callers (compressor workers) poll or are woken by the caller's
// own scheduling.
func (q *Queue) NextPendingBlock() *Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.kind == KindBlock && it.status == StatusTodo {
			it.status = StatusInProgress
			return it
		}
	}
	return nil
}

// CompleteBlock atomically replaces an IN_PROGRESS item's block payload and
// marks it DONE, then wakes the consumer in case this was the head.
func (q *Queue) CompleteBlock(item *Item, result *BlockInfo) {
	q.mu.Lock()
	defer q.mu.Unlock()
	item.block = result
	item.status = StatusDone
	q.notEmpty.Broadcast()
}

// DequeueFirst blocks until the queue is non-empty and its head item is
// DONE, then pops and returns it. Returns ok=false once end-of-queue is set
// and the queue has drained.
func (q *Queue) DequeueFirst() (item *Item, ok bool, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		if len(q.items) > 0 && q.items[0].status == StatusDone {
			item = q.items[0]
			q.items = q.items[1:]
			q.notFull.Broadcast()
			return item, true, nil
		}
		if len(q.items) == 0 && q.eoq {
			return nil, false, nil
		}
		if q.cancelled() {
			return nil, false, ErrCancelled
		}
		if q.closed {
			return nil, false, errs.New(errs.Closed, "queue closed")
		}
		q.waitTimeout(q.notEmpty)
	}
}

// CountPending returns the number of items still queued (any status).
func (q *Queue) CountPending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// HasTodoBlock reports whether any block item is still awaiting (or
// undergoing) compression/decompression. Compressor/decompressor pools use
// this to decide whether they may exit once the producer has stopped
// enqueuing.
func (q *Queue) HasTodoBlock() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, it := range q.items {
		if it.kind == KindBlock && (it.status == StatusTodo || it.status == StatusInProgress) {
			return true
		}
	}
	return false
}

// SetEndOfQueue marks that no more items will be enqueued; once the queue
// drains, DequeueFirst reports end-of-stream instead of blocking forever.
func (q *Queue) SetEndOfQueue() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.eoq = true
	q.notEmpty.Broadcast()
}

// GetEndOfQueue reports whether SetEndOfQueue has been called.
func (q *Queue) GetEndOfQueue() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.eoq
}

// DestroyFirst discards the head item without requiring it to be DONE; used
// during abort/teardown.
func (q *Queue) DestroyFirst() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		q.items = q.items[1:]
		q.notFull.Broadcast()
	}
}

// Close unblocks every waiter with an error; used on abort.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	q.notEmpty.Broadcast()
	q.notFull.Broadcast()
}
