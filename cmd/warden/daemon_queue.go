package main

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const defaultCompletedTTL = 30 * time.Minute

type queuedTask struct {
	info   *TaskInfo
	ctx    context.Context
	cancel context.CancelFunc
}

// TaskStore holds daemon tasks: a bounded queue for the worker plus a
// map for status lookups. Finished tasks are evicted after a TTL so the
// map does not grow unbounded.
type TaskStore struct {
	mu           sync.RWMutex
	tasks        map[string]*queuedTask
	queue        chan *queuedTask
	done         chan struct{}
	closeOnce    sync.Once
	completedTTL time.Duration
}

func NewTaskStore(maxQueue int) *TaskStore {
	if maxQueue <= 0 {
		maxQueue = 100
	}
	s := &TaskStore{
		tasks:        make(map[string]*queuedTask),
		queue:        make(chan *queuedTask, maxQueue),
		done:         make(chan struct{}),
		completedTTL: defaultCompletedTTL,
	}
	go s.evictLoop()
	return s
}

func (s *TaskStore) Enqueue(parent context.Context, task string, model string, timeout time.Duration) (*TaskInfo, error) {
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}

	select {
	case <-s.done:
		return nil, fmt.Errorf("store is closed")
	default:
	}

	id := uuid.NewString()
	ctx, cancel := context.WithTimeout(parent, timeout)

	info := &TaskInfo{
		ID:        id,
		Status:    TaskQueued,
		Task:      task,
		Model:     model,
		Timeout:   timeout.String(),
		CreatedAt: time.Now(),
	}
	qt := &queuedTask{info: info, ctx: ctx, cancel: cancel}

	s.mu.Lock()
	s.tasks[id] = qt
	s.mu.Unlock()

	select {
	case s.queue <- qt:
		return info, nil
	default:
		qt.cancel()
		s.mu.Lock()
		delete(s.tasks, id)
		s.mu.Unlock()
		return nil, fmt.Errorf("queue is full")
	}
}

func (s *TaskStore) Get(id string) (*TaskInfo, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	qt, ok := s.tasks[id]
	if !ok || qt == nil || qt.info == nil {
		return nil, false
	}
	cp := *qt.info
	return &cp, true
}

func (s *TaskStore) List() []TaskInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]TaskInfo, 0, len(s.tasks))
	for _, qt := range s.tasks {
		if qt == nil || qt.info == nil {
			continue
		}
		out = append(out, *qt.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Next blocks until a task is available or the store is closed.
func (s *TaskStore) Next() (*queuedTask, bool) {
	select {
	case qt, ok := <-s.queue:
		return qt, ok
	case <-s.done:
		return nil, false
	}
}

func (s *TaskStore) Update(id string, fn func(info *TaskInfo)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	qt := s.tasks[id]
	if qt == nil || qt.info == nil {
		return
	}
	fn(qt.info)
}

// ResolvePendingByApprovalID finishes the task that paused on the given
// approval request. The outcome of the deferred execution decides
// done vs failed.
func (s *TaskStore) ResolvePendingByApprovalID(approvalID string, success bool, result any, errMsg string) (string, bool) {
	approvalID = strings.TrimSpace(approvalID)
	if approvalID == "" {
		return "", false
	}

	var cancel context.CancelFunc
	var id string
	now := time.Now()

	s.mu.Lock()
	for _, qt := range s.tasks {
		if qt == nil || qt.info == nil {
			continue
		}
		if qt.info.Status != TaskPending {
			continue
		}
		if strings.TrimSpace(qt.info.ApprovalRequestID) != approvalID {
			continue
		}
		id = qt.info.ID
		if success {
			qt.info.Status = TaskDone
			qt.info.Result = result
		} else {
			qt.info.Status = TaskFailed
			qt.info.Error = strings.TrimSpace(errMsg)
		}
		qt.info.FinishedAt = &now
		cancel = qt.cancel
		break
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return id, cancel != nil
}

// Close cancels all in-flight task contexts and unblocks the worker.
func (s *TaskStore) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.cancelAll()
	})
}

func (s *TaskStore) cancelAll() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, qt := range s.tasks {
		if qt != nil && qt.cancel != nil {
			qt.cancel()
		}
	}
}

func isTerminal(st TaskStatus) bool {
	return st == TaskDone || st == TaskFailed || st == TaskCanceled
}

func (s *TaskStore) evictLoop() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.evictExpired()
		}
	}
}

func (s *TaskStore) evictExpired() {
	now := time.Now()
	ttl := s.completedTTL
	if ttl <= 0 {
		ttl = defaultCompletedTTL
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, qt := range s.tasks {
		if qt == nil || qt.info == nil {
			delete(s.tasks, id)
			continue
		}
		if !isTerminal(qt.info.Status) {
			continue
		}
		if qt.info.FinishedAt != nil && now.Sub(*qt.info.FinishedAt) > ttl {
			delete(s.tasks, id)
		}
	}
}
