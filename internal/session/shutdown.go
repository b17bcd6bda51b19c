package session

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/vibepruner/vibepruner/pkg/logging"
	"github.com/vibepruner/vibepruner/pkg/model"
)

// Coordinator runs graceful-shutdown work when the process receives SIGINT
// or SIGTERM: it synchronously marks the session interrupted, persists it,
// and runs registered handlers. It does not exit the process; the driver
// decides that after the signal path returns.
type Coordinator struct {
	mgr *Manager
	log *logging.Logger

	mu       sync.Mutex
	handlers []func()

	sigCh  chan os.Signal
	doneCh chan struct{}
}

// NewCoordinator creates a shutdown coordinator over a session manager.
func NewCoordinator(mgr *Manager) *Coordinator {
	return &Coordinator{
		mgr: mgr,
		log: logging.WithFields(map[string]any{"component": "shutdown"}),
	}
}

// RegisterHandler adds a handler run on shutdown, after the session has been
// marked interrupted and persisted. Handlers run in registration order.
func (c *Coordinator) RegisterHandler(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, fn)
}

// Install starts listening for SIGINT and SIGTERM.
func (c *Coordinator) Install() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sigCh != nil {
		return
	}
	c.sigCh = make(chan os.Signal, 1)
	c.doneCh = make(chan struct{})
	signal.Notify(c.sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		defer close(c.doneCh)
		for sig := range c.sigCh {
			c.HandleSignal(sig.String())
		}
	}()
}

// Uninstall stops signal delivery and waits for any in-flight handler run.
// The wait happens outside the mutex; a handler running in the signal
// goroutine takes the same mutex.
func (c *Coordinator) Uninstall() {
	c.mu.Lock()
	sigCh, doneCh := c.sigCh, c.doneCh
	c.sigCh, c.doneCh = nil, nil
	c.mu.Unlock()

	if sigCh == nil {
		return
	}
	signal.Stop(sigCh)
	close(sigCh)
	<-doneCh
}

// HandleSignal is the synchronous signal path: persist first, then run
// handlers. Persisting before anything else means even a handler crash
// leaves the interrupted flag on disk for the next resume.
func (c *Coordinator) HandleSignal(signalName string) {
	c.log.Warn("received shutdown signal", map[string]any{"signal": signalName})

	if err := c.mgr.MarkInterrupted(signalName); err != nil {
		c.log.ErrorErr("could not persist interrupted session state", err)
	}

	c.mu.Lock()
	handlers := make([]func(), len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	for _, fn := range handlers {
		c.runHandler(fn)
	}
}

func (c *Coordinator) runHandler(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("shutdown handler panicked", map[string]any{"panic": r})
		}
	}()
	fn()
}

// Cleanup ends any still-active session as interrupted. Intended as a
// deferred last resort on process exit paths that bypass EndSession.
func (c *Coordinator) Cleanup() {
	if !c.mgr.Active() {
		return
	}
	if err := c.mgr.EndSession(model.SessionInterrupted); err != nil {
		c.log.ErrorErr("could not end session during cleanup", err)
	}
}
