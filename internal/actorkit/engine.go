package actorkit

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Engine owns the set of live actors and routes messages between them. It
// is the single substrate every conversation, registry, and connection in
// this system runs on: spawning an actor gets you a private mailbox that
// serializes all mutation of that actor's state, which is how the system
// gets the single-threaded, lock-free semantics its protocol engines
// require without taking a single mutex in the domain code itself.
type Engine struct {
	log zerolog.Logger

	pidCounter uint64
	mu         sync.RWMutex
	actors     map[string]*process
	stopping   atomic.Bool
}

// NewEngine creates an actor engine that logs actor lifecycle events through
// log.
func NewEngine(log zerolog.Logger) *Engine {
	return &Engine{
		log:    log.With().Str("component", "actorkit").Logger(),
		actors: make(map[string]*process),
	}
}

func (e *Engine) nextPID(tag string) *PID {
	id := atomic.AddUint64(&e.pidCounter, 1)
	if tag == "" {
		tag = "actor"
	}
	return &PID{ID: fmt.Sprintf("%s-%d", tag, id)}
}

// Spawn starts a new actor from props, tagging its PID with tag for easier
// log reading (e.g. "conversation", "conn"). It returns nil if the engine is
// already shutting down.
func (e *Engine) Spawn(tag string, props *Props) *PID {
	if e.stopping.Load() {
		e.log.Warn().Str("tag", tag).Msg("engine is stopping, refusing to spawn")
		return nil
	}

	pid := e.nextPID(tag)
	proc := newProcess(e, pid, props)

	e.mu.Lock()
	e.actors[pid.ID] = proc
	e.mu.Unlock()

	go proc.run()

	return pid
}

// Send delivers message to pid's mailbox without blocking. If the mailbox
// is full the message is dropped — mailboxes are sized generously enough
// that this only happens under pathological backlog, and dropping beats
// blocking the sender's own actor loop.
func (e *Engine) Send(pid *PID, message interface{}, sender *PID) {
	if pid == nil {
		return
	}

	e.mu.RLock()
	proc, ok := e.actors[pid.ID]
	e.mu.RUnlock()

	if !ok {
		e.log.Debug().Str("pid", pid.ID).Str("type", fmt.Sprintf("%T", message)).Msg("actor not found, dropping message")
		return
	}

	proc.deliver(message, sender)
}

// Stop asks the actor at pid to wind down: it receives Stopping and then
// Stopped. Messages still waiting in its mailbox may be dropped unprocessed.
func (e *Engine) Stop(pid *PID) {
	if pid == nil {
		return
	}
	e.mu.RLock()
	proc, ok := e.actors[pid.ID]
	e.mu.RUnlock()
	if !ok {
		return
	}
	proc.requestStop()
}

func (e *Engine) remove(pid *PID) {
	e.mu.Lock()
	delete(e.actors, pid.ID)
	e.mu.Unlock()
}

// Shutdown stops every live actor and blocks until they have all exited or
// timeout elapses, whichever comes first.
func (e *Engine) Shutdown(timeout time.Duration) {
	if !e.stopping.CompareAndSwap(false, true) {
		return
	}

	e.mu.RLock()
	pids := make([]*PID, 0, len(e.actors))
	for _, proc := range e.actors {
		pids = append(pids, proc.pid)
	}
	e.mu.RUnlock()

	for _, pid := range pids {
		e.Stop(pid)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		e.mu.RLock()
		remaining := len(e.actors)
		e.mu.RUnlock()
		if remaining == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}

	e.mu.RLock()
	remaining := len(e.actors)
	e.mu.RUnlock()
	if remaining > 0 {
		e.log.Warn().Int("remaining", remaining).Msg("actors did not stop before shutdown deadline")
	}
}

// Count reports the number of live actors, mainly for tests and metrics.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.actors)
}
