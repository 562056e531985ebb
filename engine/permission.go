package engine

import (
	"context"
	"sync"

	"github.com/famulus-dev/famulus/llm"
)

// Decision is the outcome of a permission request.
type Decision string

const (
	// DecisionApprove permits this one call.
	DecisionApprove Decision = "approve"
	// DecisionDeny skips the call; the model receives an error result.
	DecisionDeny Decision = "deny"
	// DecisionSession permits this call and every later call to the same
	// tool for the rest of the run.
	DecisionSession Decision = "session"
)

// PermissionRequest is handed to the Requester when a tool's policy is
// ask and no session approval exists. Resolve may be called exactly once;
// later calls are no-ops.
type PermissionRequest struct {
	RunID    string
	ToolCall llm.ToolCall

	once     sync.Once
	decision Decision
	done     chan struct{}
}

// NewPermissionRequest creates an unresolved request. The engine builds
// these itself; the constructor exists for hosts testing their Requester
// implementations.
func NewPermissionRequest(runID string, call llm.ToolCall) *PermissionRequest {
	return &PermissionRequest{
		RunID:    runID,
		ToolCall: call,
		done:     make(chan struct{}),
	}
}

// Resolve records the decision. Only the first call has any effect.
func (r *PermissionRequest) Resolve(decision Decision) {
	r.once.Do(func() {
		r.decision = decision
		close(r.done)
	})
}

// Decision returns the resolution and whether one has been made.
func (r *PermissionRequest) Decision() (Decision, bool) {
	select {
	case <-r.done:
		return r.decision, true
	default:
		return "", false
	}
}

// Requester is the host-side half of permission negotiation. The engine
// calls Request from the goroutine executing the suspended tool call; the
// host resolves the request from any goroutine.
type Requester interface {
	Request(req *PermissionRequest)
}

// RequesterFunc adapts a function to the Requester interface.
type RequesterFunc func(req *PermissionRequest)

func (f RequesterFunc) Request(req *PermissionRequest) { f(req) }

// AllowAll is a Requester that approves every request. Useful for
// non-interactive hosts that rely on tool default policies alone.
var AllowAll Requester = RequesterFunc(func(req *PermissionRequest) {
	req.Resolve(DecisionApprove)
})

// negotiator tracks pending permission requests by tool-call ID and the
// set of session-approved tool names.
type negotiator struct {
	requester Requester

	mu       sync.Mutex
	pending  map[string]*PermissionRequest
	approved map[string]bool
}

func newNegotiator(requester Requester) *negotiator {
	return &negotiator{
		requester: requester,
		pending:   make(map[string]*PermissionRequest),
		approved:  make(map[string]bool),
	}
}

// sessionApproved reports whether the tool name was granted a session
// approval earlier in the run.
func (n *negotiator) sessionApproved(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.approved[name]
}

// negotiate suspends the calling goroutine until the host resolves the
// request or ctx is cancelled. A session decision records the tool name
// so later calls skip prompting.
func (n *negotiator) negotiate(ctx context.Context, runID string, call llm.ToolCall) (Decision, error) {
	req := NewPermissionRequest(runID, call)

	n.mu.Lock()
	n.pending[call.ID] = req
	n.mu.Unlock()

	defer func() {
		n.mu.Lock()
		delete(n.pending, call.ID)
		n.mu.Unlock()
	}()

	n.requester.Request(req)

	select {
	case <-req.done:
		if req.decision == DecisionSession {
			n.mu.Lock()
			n.approved[call.Name] = true
			n.mu.Unlock()
		}
		return req.decision, nil
	case <-ctx.Done():
		return DecisionDeny, ctx.Err()
	}
}
