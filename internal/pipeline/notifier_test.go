package pipeline

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNotifier_DeliversInOrder(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := newNotifier(rec.listen)

	for seq := uint64(1); seq <= 50; seq++ {
		n.push(Snapshot{Seq: seq})
	}
	n.wait()

	snaps := rec.all()
	assert.Len(t, snaps, 50)
	for i, s := range snaps {
		assert.Equal(t, uint64(i+1), s.Seq)
	}
}

func TestNotifier_DropsStaleSnapshots(t *testing.T) {
	t.Parallel()
	rec := &recorder{}
	n := newNotifier(rec.listen)

	n.push(Snapshot{Seq: 3})
	n.push(Snapshot{Seq: 2})
	n.push(Snapshot{Seq: 3})
	n.push(Snapshot{Seq: 4})
	n.wait()

	var seqs []uint64
	for _, s := range rec.all() {
		seqs = append(seqs, s.Seq)
	}
	assert.Equal(t, []uint64{3, 4}, seqs)
}

func TestNotifier_PushDoesNotBlockOnListener(t *testing.T) {
	t.Parallel()
	release := make(chan struct{})
	var (
		mu   sync.Mutex
		seen []uint64
	)
	n := newNotifier(func(s Snapshot) {
		<-release
		mu.Lock()
		seen = append(seen, s.Seq)
		mu.Unlock()
	})

	pushed := make(chan struct{})
	go func() {
		n.push(Snapshot{Seq: 1})
		n.push(Snapshot{Seq: 2})
		close(pushed)
	}()

	select {
	case <-pushed:
	case <-time.After(time.Second):
		t.Fatal("push blocked on a slow listener")
	}

	close(release)
	n.wait()
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []uint64{1, 2}, seen)
}

func TestNotifier_NilListener(t *testing.T) {
	t.Parallel()
	n := newNotifier(nil)
	n.push(Snapshot{Seq: 1})
	n.wait()
}
