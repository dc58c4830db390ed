package lanenet

import "sync"

// inbox is the hand-off between a receive goroutine and the tick loop.
// Put never blocks; Poll never blocks. Once closed, Poll drains what is left
// and then reports the close reason.
type inbox struct {
	mtx  sync.Mutex
	envs []Envelope
	max  int
	err  error
}

func newInbox(max int) *inbox {
	return &inbox{max: max}
}

// Put reports false when the inbox is closed or full.
func (ib *inbox) Put(env Envelope) bool {
	ib.mtx.Lock()
	defer ib.mtx.Unlock()

	if ib.err != nil {
		return false
	}
	if ib.max > 0 && len(ib.envs) >= ib.max {
		return false
	}
	ib.envs = append(ib.envs, env)
	return true
}

func (ib *inbox) Poll() (Envelope, bool, error) {
	ib.mtx.Lock()
	defer ib.mtx.Unlock()

	if len(ib.envs) > 0 {
		env := ib.envs[0]
		ib.envs[0] = Envelope{}
		ib.envs = ib.envs[1:]
		return env, true, nil
	}
	return Envelope{}, false, ib.err
}

func (ib *inbox) Len() int {
	ib.mtx.Lock()
	defer ib.mtx.Unlock()

	return len(ib.envs)
}

func (ib *inbox) Close(err error) {
	ib.mtx.Lock()
	defer ib.mtx.Unlock()

	if ib.err == nil {
		ib.err = err
	}
}

// Drain drops everything queued.
func (ib *inbox) Drain() {
	ib.mtx.Lock()
	defer ib.mtx.Unlock()

	ib.envs = nil
}
