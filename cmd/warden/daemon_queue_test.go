package main

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestTaskStore_NextReturnsOnClose(t *testing.T) {
	store := NewTaskStore(10)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		qt, ok := store.Next()
		if ok {
			t.Errorf("expected ok=false after Close, got ok=true (qt=%v)", qt)
		}
	}()

	// Give the goroutine time to block on Next().
	time.Sleep(50 * time.Millisecond)
	store.Close()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not exit after Close()")
	}
}

func TestTaskStore_CloseIsIdempotent(t *testing.T) {
	store := NewTaskStore(10)
	store.Close()
	store.Close() // must not panic
}

func TestTaskStore_EnqueueAfterCloseReturnsError(t *testing.T) {
	store := NewTaskStore(10)
	store.Close()
	if _, err := store.Enqueue(context.Background(), "task", "model", time.Minute); err == nil {
		t.Fatal("expected error on Enqueue after Close, got nil")
	}
}

func TestTaskStore_QueueFull(t *testing.T) {
	store := NewTaskStore(1)
	defer store.Close()

	if _, err := store.Enqueue(context.Background(), "first", "", time.Minute); err != nil {
		t.Fatalf("first enqueue failed: %v", err)
	}
	if _, err := store.Enqueue(context.Background(), "second", "", time.Minute); err == nil {
		t.Fatal("expected queue-full error")
	}
}

func TestTaskStore_ResolvePendingByApprovalID(t *testing.T) {
	store := NewTaskStore(10)
	defer store.Close()

	info, err := store.Enqueue(context.Background(), "task", "", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	store.Update(info.ID, func(i *TaskInfo) {
		i.Status = TaskPending
		i.ApprovalRequestID = "apr_abc"
	})

	id, ok := store.ResolvePendingByApprovalID("apr_abc", true, "pushed", "")
	if !ok || id != info.ID {
		t.Fatalf("expected resolution of %s, got id=%q ok=%v", info.ID, id, ok)
	}

	got, _ := store.Get(info.ID)
	if got.Status != TaskDone {
		t.Fatalf("expected done, got %s", got.Status)
	}
	if got.Result != "pushed" {
		t.Fatalf("expected result recorded, got %v", got.Result)
	}

	// Already resolved: a second resolution finds nothing.
	if _, ok := store.ResolvePendingByApprovalID("apr_abc", true, "", ""); ok {
		t.Fatal("expected no pending task on second resolution")
	}
}

func TestTaskStore_ResolvePendingRejected(t *testing.T) {
	store := NewTaskStore(10)
	defer store.Close()

	info, err := store.Enqueue(context.Background(), "task", "", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	store.Update(info.ID, func(i *TaskInfo) {
		i.Status = TaskPending
		i.ApprovalRequestID = "apr_xyz"
	})

	if _, ok := store.ResolvePendingByApprovalID("apr_xyz", false, nil, "rejected by reviewer"); !ok {
		t.Fatal("expected resolution")
	}
	got, _ := store.Get(info.ID)
	if got.Status != TaskFailed || got.Error != "rejected by reviewer" {
		t.Fatalf("expected failed with reason, got %+v", got)
	}
}

func TestTaskStore_EvictExpired(t *testing.T) {
	store := NewTaskStore(10)
	defer store.Close()
	store.completedTTL = time.Millisecond

	info, err := store.Enqueue(context.Background(), "task", "", time.Minute)
	if err != nil {
		t.Fatal(err)
	}
	old := time.Now().Add(-time.Hour)
	store.Update(info.ID, func(i *TaskInfo) {
		i.Status = TaskDone
		i.FinishedAt = &old
	})

	store.evictExpired()
	if _, ok := store.Get(info.ID); ok {
		t.Fatal("expected finished task to be evicted")
	}
}
