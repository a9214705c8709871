package scope

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoot(t *testing.T) {
	s := Root()
	require.NotNil(t, s)
	assert.True(t, s.Active())
}

func TestScope_CancelPropagatesToChildren(t *testing.T) {
	root := Root()
	child := root.Child()
	grandchild := child.Child()

	assert.True(t, grandchild.Active())
	root.Cancel()

	<-child.Done()
	<-grandchild.Done()
	assert.False(t, child.Active())
	assert.False(t, grandchild.Active())
}

func TestScope_ChildCancelDoesNotPropagateUp(t *testing.T) {
	root := Root()
	child := root.Child()

	child.Cancel()

	<-child.Done()
	assert.True(t, root.Active(), "cancelling a child must not cancel its parent")
}

func TestScope_Go_RunsTask(t *testing.T) {
	s := Root()
	var ran atomic.Bool

	s.Go(func(ctx context.Context) {
		ran.Store(true)
	})

	s.Wait()
	assert.True(t, ran.Load())
}

func TestScope_Go_TaskObservesCancellation(t *testing.T) {
	s := Root()
	observed := make(chan struct{})

	s.Go(func(ctx context.Context) {
		<-ctx.Done()
		close(observed)
	})

	s.Cancel()

	select {
	case <-observed:
	case <-time.After(time.Second):
		t.Fatal("task did not observe cancellation")
	}

	s.Wait()
}

func TestScope_Go_PanicDoesNotCancelScopeOrSiblings(t *testing.T) {
	s := Root()
	var siblingRan atomic.Bool
	var panicked sync.WaitGroup
	panicked.Add(1)

	s.OnPanic(func(recovered any) {
		assert.Equal(t, "boom", recovered)
		panicked.Done()
	})

	s.Go(func(ctx context.Context) {
		panic("boom")
	})

	s.Go(func(ctx context.Context) {
		siblingRan.Store(true)
	})

	s.Wait()
	panicked.Wait()

	assert.True(t, siblingRan.Load())
	assert.True(t, s.Active(), "a panicking task must not cancel its own scope")
}

func TestScope_Wait_BlocksUntilTasksFinish(t *testing.T) {
	s := Root()
	var finished atomic.Bool

	s.Go(func(ctx context.Context) {
		time.Sleep(20 * time.Millisecond)
		finished.Store(true)
	})

	s.Wait()
	assert.True(t, finished.Load())
}
