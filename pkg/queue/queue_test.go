package queue

import (
	"testing"

	"github.com/go-fsarchiver/fsarchiver/pkg/consts"
	"github.com/go-fsarchiver/fsarchiver/pkg/dictionary"
)

func TestHeaderItemsDequeueInOrder(t *testing.T) {
	q := New(8)
	for i := 0; i < 3; i++ {
		d := dictionary.New()
		d.AddU8(0, 0, byte(i))
		if err := q.EnqueueHeader(d, consts.HeadObject, uint16(i)); err != nil {
			t.Fatalf("EnqueueHeader: %v", err)
		}
	}
	for i := 0; i < 3; i++ {
		item, ok, err := q.DequeueFirst()
		if err != nil || !ok {
			t.Fatalf("DequeueFirst: ok=%v err=%v", ok, err)
		}
		if item.Header().FSIndex != uint16(i) {
			t.Fatalf("got fsindex %d, want %d", item.Header().FSIndex, i)
		}
	}
}

func TestDequeueBlocksOnHeadNotDone(t *testing.T) {
	q := New(8)
	item, err := q.EnqueueBlock(&BlockInfo{Raw: []byte("a")}, StatusTodo)
	if err != nil {
		t.Fatalf("EnqueueBlock: %v", err)
	}

	done := make(chan *Item, 1)
	go func() {
		it, ok, err := q.DequeueFirst()
		if err != nil || !ok {
			t.Errorf("DequeueFirst: ok=%v err=%v", ok, err)
			return
		}
		done <- it
	}()

	claimed := q.NextPendingBlock()
	if claimed != item {
		t.Fatalf("expected to claim the enqueued item")
	}
	q.CompleteBlock(claimed, &BlockInfo{Archived: []byte("compressed-a")})

	got := <-done
	if string(got.Block().Archived) != "compressed-a" {
		t.Fatalf("unexpected archived payload: %q", got.Block().Archived)
	}
}

func TestOutOfOrderCompletionPreservesDequeueOrder(t *testing.T) {
	q := New(8)
	first, _ := q.EnqueueBlock(&BlockInfo{Meta: "first"}, StatusTodo)
	second, _ := q.EnqueueBlock(&BlockInfo{Meta: "second"}, StatusTodo)

	// Complete the second item before the first: the compressor pool may
	// race, but the queue must still hand out "first" first.
	q.CompleteBlock(second, &BlockInfo{Meta: "second-done"})

	resultCh := make(chan string, 1)
	go func() {
		it, ok, err := q.DequeueFirst()
		if err != nil || !ok {
			t.Errorf("DequeueFirst: ok=%v err=%v", ok, err)
			return
		}
		resultCh <- it.Block().Meta.(string)
	}()

	select {
	case <-resultCh:
		t.Fatalf("dequeue returned before the head item was completed")
	default:
	}

	q.CompleteBlock(first, &BlockInfo{Meta: "first-done"})
	if got := <-resultCh; got != "first-done" {
		t.Fatalf("got %q, want first-done", got)
	}
}

func TestEndOfQueueDrainsThenReportsDone(t *testing.T) {
	q := New(8)
	d := dictionary.New()
	if err := q.EnqueueHeader(d, consts.HeadDataEnd, consts.GlobalFSIndex); err != nil {
		t.Fatalf("EnqueueHeader: %v", err)
	}
	q.SetEndOfQueue()

	if _, ok, err := q.DequeueFirst(); err != nil || !ok {
		t.Fatalf("expected the queued item before end-of-stream: ok=%v err=%v", ok, err)
	}
	_, ok, err := q.DequeueFirst()
	if err != nil {
		t.Fatalf("DequeueFirst: %v", err)
	}
	if ok {
		t.Fatalf("expected end-of-stream after drain")
	}
}

func TestCountPending(t *testing.T) {
	q := New(2)
	if _, err := q.EnqueueBlock(&BlockInfo{}, StatusDone); err != nil {
		t.Fatalf("EnqueueBlock: %v", err)
	}
	if got := q.CountPending(); got != 1 {
		t.Fatalf("CountPending = %d, want 1", got)
	}
}
