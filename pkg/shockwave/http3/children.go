package http3

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// ShutdownPolicy controls how the Child Supervisor tears down a stream's
// children when the stream itself is being terminated (§4.9).
type ShutdownPolicy int

const (
	// ShutdownTimeout cancels the child's context and waits up to the
	// supervisor's grace period before treating it as brutal_kill.
	ShutdownTimeout ShutdownPolicy = iota
	// ShutdownBrutalKill cancels the child's context and does not wait.
	ShutdownBrutalKill
)

// ChildExit is the Go translation of an actor-model DOWN message: what
// children.down(pid) (§4.8) becomes once a supervised child goroutine
// returns, for the connection loop to forward to the owning stream's
// handler via the info path (§4.7).
type ChildExit struct {
	Ref  StreamRef
	Name string
	Err  error
}

type childID uint64

type child struct {
	ref    StreamRef
	name   string
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

// childSupervisor runs the auxiliary goroutines a handler spawns via the
// Spawn command (response.go), one entry per child keyed by an
// internally assigned id so an exit can be attributed to its owning
// stream independently of whether that stream is still live (§4.8's
// children mapping). Every child's completion is reported to notify
// unless its owning stream was torn down first, in which case it is the
// Known(None) case and is dropped silently.
type childSupervisor struct {
	mu       sync.Mutex
	grace    time.Duration
	nextID   childID
	children map[childID]*child
	byStream map[StreamRef]map[childID]struct{}
	notify   func(ChildExit)
}

func newChildSupervisor(grace time.Duration, notify func(ChildExit)) *childSupervisor {
	return &childSupervisor{
		grace:    grace,
		children: make(map[childID]*child),
		byStream: make(map[StreamRef]map[childID]struct{}),
		notify:   notify,
	}
}

// Spawn starts run as a supervised child of ref. It returns immediately;
// run's outcome is reported asynchronously through notify, or dropped if
// ref's stream has already been torn down by the time run returns.
func (cs *childSupervisor) Spawn(ctx context.Context, ref StreamRef, name string, run func(context.Context) error) {
	childCtx, cancel := context.WithCancel(ctx)
	c := &child{ref: ref, name: name, cancel: cancel, done: make(chan struct{})}

	cs.mu.Lock()
	id := cs.nextID
	cs.nextID++
	cs.children[id] = c
	if cs.byStream[ref] == nil {
		cs.byStream[ref] = make(map[childID]struct{})
	}
	cs.byStream[ref][id] = struct{}{}
	cs.mu.Unlock()

	go func() {
		c.err = run(childCtx)
		close(c.done)

		cs.mu.Lock()
		_, known := cs.children[id]
		delete(cs.children, id)
		if set := cs.byStream[ref]; set != nil {
			delete(set, id)
			if len(set) == 0 {
				delete(cs.byStream, ref)
			}
		}
		cs.mu.Unlock()

		// Known(None): Terminate already removed this child's
		// bookkeeping because its stream ended first — drop quietly.
		if !known || cs.notify == nil {
			return
		}
		cs.notify(ChildExit{Ref: ref, Name: name, Err: c.err})
	}()
}

// Terminate tears down every child spawned for ref according to policy
// (§4.9). It blocks until the children finish or the grace period
// elapses under ShutdownTimeout; under ShutdownBrutalKill it returns as
// soon as cancellation has been issued. Children reaped here never reach
// notify — removing their bookkeeping up front is what makes their own
// goroutine's later lookup miss and fall into the Known(None) path.
func (cs *childSupervisor) Terminate(ref StreamRef, policy ShutdownPolicy) error {
	cs.mu.Lock()
	ids := cs.byStream[ref]
	delete(cs.byStream, ref)
	chs := make([]*child, 0, len(ids))
	for id := range ids {
		if c, ok := cs.children[id]; ok {
			chs = append(chs, c)
			delete(cs.children, id)
		}
	}
	cs.mu.Unlock()

	if len(chs) == 0 {
		return nil
	}
	for _, c := range chs {
		c.cancel()
	}
	if policy == ShutdownBrutalKill {
		return nil
	}

	waitAll := make(chan *multierror.Error, 1)
	go func() {
		var merr *multierror.Error
		for _, c := range chs {
			<-c.done
			if c.err != nil {
				merr = multierror.Append(merr, c.err)
			}
		}
		waitAll <- merr
	}()

	select {
	case merr := <-waitAll:
		return merr.ErrorOrNil()
	case <-time.After(cs.grace):
		return nil
	}
}

// TerminateAll is called from Terminate Connection (§4.9) to tear down
// every stream's children, aggregating failures.
func (cs *childSupervisor) TerminateAll(policy ShutdownPolicy) []error {
	cs.mu.Lock()
	refs := make([]StreamRef, 0, len(cs.byStream))
	for ref := range cs.byStream {
		refs = append(refs, ref)
	}
	cs.mu.Unlock()

	var errs []error
	for _, ref := range refs {
		if err := cs.Terminate(ref, policy); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
