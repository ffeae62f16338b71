// Package notifier coalesces bursts of change signals into single deliveries.
package notifier

import (
	"sync"
	"time"
)

// DefaultWindow is the quiet period used when none is configured.
const DefaultWindow = 500 * time.Millisecond

// Notifier delivers once per quiet period. Every Notify restarts the window;
// the delivery callback runs only when a window elapses without another
// Notify, Cancel or Stop.
type Notifier struct {
	mutex      sync.Mutex
	window     time.Duration
	deliver    func()
	timer      *time.Timer
	generation uint64
	stopped    bool
	inFlight   sync.WaitGroup
}

// New returns a Notifier calling deliver after window of quiet. A
// non-positive window selects DefaultWindow.
func New(window time.Duration, deliver func()) *Notifier {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Notifier{window: window, deliver: deliver}
}

// Window returns the configured quiet period.
func (notifier *Notifier) Window() time.Duration {
	return notifier.window
}

// Notify (re)arms the timer. It never delivers synchronously.
func (notifier *Notifier) Notify() {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	if notifier.stopped {
		return
	}
	notifier.stopTimerLocked()
	notifier.generation++
	generation := notifier.generation
	notifier.timer = time.AfterFunc(notifier.window, func() { notifier.fire(generation) })
}

// Cancel drops a pending delivery, if any.
func (notifier *Notifier) Cancel() {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	notifier.stopTimerLocked()
	notifier.generation++
}

// Pending reports whether a delivery is scheduled.
func (notifier *Notifier) Pending() bool {
	notifier.mutex.Lock()
	defer notifier.mutex.Unlock()
	return notifier.timer != nil
}

// Stop cancels any pending delivery, disables the notifier and waits for a
// delivery already running to return. It must not be called from the
// delivery callback.
func (notifier *Notifier) Stop() {
	notifier.mutex.Lock()
	notifier.stopped = true
	notifier.stopTimerLocked()
	notifier.generation++
	notifier.mutex.Unlock()
	notifier.inFlight.Wait()
}

func (notifier *Notifier) fire(generation uint64) {
	notifier.mutex.Lock()
	if notifier.stopped || generation != notifier.generation {
		// superseded after the timer fired
		notifier.mutex.Unlock()
		return
	}
	notifier.timer = nil
	notifier.inFlight.Add(1)
	notifier.mutex.Unlock()

	defer notifier.inFlight.Done()
	if notifier.deliver != nil {
		notifier.deliver()
	}
}

func (notifier *Notifier) stopTimerLocked() {
	if notifier.timer != nil {
		notifier.timer.Stop()
		notifier.timer = nil
	}
}
