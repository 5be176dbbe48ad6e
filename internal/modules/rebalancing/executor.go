package rebalancing

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// ErrExecutionRejected is returned by executors that refuse a request
var ErrExecutionRejected = errors.New("execution rejected")

// ExecutionRequest is what an executor is asked to carry out
type ExecutionRequest struct {
	ExecutionID   string
	OwnerKey      string
	PositionID    string
	Mode          Action
	EstimatedCost float64
	ValueUSD      float64
}

// Receipt is the executor's account of a finished rebalance
type Receipt struct {
	TxIDs      []string
	ActualCost float64
	Notes      []string
}

// Executor performs the on-chain side of a rebalance
type Executor interface {
	Execute(ctx context.Context, req ExecutionRequest) (*Receipt, error)
}

// SimulatedExecutor completes every request without side effects. The actual cost
// is the estimate scaled by CostFactor; positions listed in failures are rejected.
type SimulatedExecutor struct {
	mu         sync.Mutex
	costFactor float64
	failures   map[string]error
	requests   []ExecutionRequest
}

// NewSimulatedExecutor creates a simulated executor with the given cost factor (0 means 1)
func NewSimulatedExecutor(costFactor float64) *SimulatedExecutor {
	if costFactor <= 0 {
		costFactor = 1
	}
	return &SimulatedExecutor{costFactor: costFactor, failures: make(map[string]error)}
}

// FailPosition makes every execution for positionID fail with err (nil clears it)
func (e *SimulatedExecutor) FailPosition(positionID string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil {
		delete(e.failures, positionID)
		return
	}
	e.failures[positionID] = err
}

// Requests returns the requests seen so far
func (e *SimulatedExecutor) Requests() []ExecutionRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ExecutionRequest(nil), e.requests...)
}

// Execute implements Executor
func (e *SimulatedExecutor) Execute(ctx context.Context, req ExecutionRequest) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.requests = append(e.requests, req)
	if err, ok := e.failures[req.PositionID]; ok {
		return nil, fmt.Errorf("simulated execution for %s: %w", req.PositionID, err)
	}

	steps := []string{"withdraw", "swap", "deposit"}
	if req.Mode == ActionConservative {
		steps = []string{"withdraw", "deposit"}
	}
	receipt := &Receipt{ActualCost: req.EstimatedCost * e.costFactor}
	for _, step := range steps {
		receipt.TxIDs = append(receipt.TxIDs, fmt.Sprintf("sim-%s-%s", step, uuid.NewString()[:8]))
	}
	return receipt, nil
}

// History is a bounded log of executions, newest last
type History struct {
	mu       sync.RWMutex
	capacity int
	items    []*Execution
}

// NewHistory creates a history keeping at most capacity executions (0 means 200)
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = 200
	}
	return &History{capacity: capacity}
}

// Add appends an execution, evicting the oldest when full
func (h *History) Add(e *Execution) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = append(h.items, e)
	if over := len(h.items) - h.capacity; over > 0 {
		h.items = append([]*Execution(nil), h.items[over:]...)
	}
}

// Get returns an execution by id
func (h *History) Get(id string) (*Execution, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, e := range h.items {
		if e.ID == id {
			return e, true
		}
	}
	return nil, false
}

// ForPosition returns the executions of a position, newest first
func (h *History) ForPosition(positionID string) []*Execution {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Execution, 0)
	for i := len(h.items) - 1; i >= 0; i-- {
		if h.items[i].PositionID == positionID {
			out = append(out, h.items[i])
		}
	}
	return out
}

// Len returns the number of retained executions
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}
