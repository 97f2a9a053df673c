package actorkit

import (
	"runtime/debug"
	"sync/atomic"
)

const defaultMailboxSize = 256

// process is the running instance of one actor: its mailbox, its Actor
// value, and the goroutine draining the mailbox one message at a time.
type process struct {
	engine  *Engine
	pid     *PID
	actor   Actor
	props   *Props
	mailbox chan messageEnvelope
	stopCh  chan struct{}
	stopped atomic.Bool
}

func newProcess(engine *Engine, pid *PID, props *Props) *process {
	return &process{
		engine:  engine,
		pid:     pid,
		props:   props,
		mailbox: make(chan messageEnvelope, defaultMailboxSize),
		stopCh:  make(chan struct{}),
	}
}

func (p *process) deliver(message interface{}, sender *PID) {
	if p.stopped.Load() {
		return
	}
	select {
	case p.mailbox <- messageEnvelope{Sender: sender, Message: message}:
	default:
		p.engine.log.Warn().Str("pid", p.pid.ID).Msg("mailbox full, dropping message")
	}
}

func (p *process) requestStop() {
	select {
	case <-p.stopCh:
	default:
		close(p.stopCh)
	}
}

func (p *process) run() {
	defer p.finish()

	p.actor = p.props.produce()
	p.invoke(Started{}, nil)

	for {
		select {
		case <-p.stopCh:
			p.invoke(Stopping{}, nil)
			return
		case env := <-p.mailbox:
			p.invoke(env.Message, env.Sender)
		}
	}
}

func (p *process) finish() {
	if r := recover(); r != nil {
		p.engine.log.Error().Str("pid", p.pid.ID).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("actor panicked, stopping")
	}
	p.stopped.Store(true)
	func() {
		defer func() {
			if r := recover(); r != nil {
				p.engine.log.Error().Str("pid", p.pid.ID).Interface("panic", r).Msg("actor panicked handling Stopped")
			}
		}()
		if p.actor != nil {
			p.invoke(Stopped{}, nil)
		}
	}()
	p.engine.remove(p.pid)
}

func (p *process) invoke(msg interface{}, sender *PID) {
	defer func() {
		if r := recover(); r != nil {
			p.engine.log.Error().Str("pid", p.pid.ID).Interface("panic", r).Bytes("stack", debug.Stack()).Msg("actor panicked in Receive")
			p.requestStop()
		}
	}()
	p.actor.Receive(&context{engine: p.engine, self: p.pid, sender: sender, message: msg})
}
