package eventx

import "sync"

// Join is a one-shot barrier over two branches of work: a "local"
// branch (a request the caller issued) and a "remote" branch (an
// asynchronous signal arriving from elsewhere). The branches may settle
// in either order; the success callback fires exactly once, only after
// both have settled. Any failure settles the join immediately and
// permanently, so late branch resolutions become no-ops.
type Join struct {
	mu         sync.Mutex
	localDone  bool
	remoteDone bool
	remote     any
	settled    bool

	onBoth func(remote any)
	onFail func(err error)
}

// NewJoin creates a join. onBoth receives the remote branch's payload
// once both branches have resolved; onFail receives the first failure.
// Either callback runs at most once, and never both.
func NewJoin(onBoth func(remote any), onFail func(err error)) *Join {
	return &Join{onBoth: onBoth, onFail: onFail}
}

// ResolveLocal marks the local branch as settled successfully.
func (j *Join) ResolveLocal() {
	j.mu.Lock()
	if j.settled {
		j.mu.Unlock()
		return
	}
	j.localDone = true
	fire, payload := j.readyLocked()
	j.mu.Unlock()

	if fire {
		j.onBoth(payload)
	}
}

// ResolveRemote marks the remote branch as settled with payload.
func (j *Join) ResolveRemote(payload any) {
	j.mu.Lock()
	if j.settled {
		j.mu.Unlock()
		return
	}
	j.remoteDone = true
	j.remote = payload
	fire, out := j.readyLocked()
	j.mu.Unlock()

	if fire {
		j.onBoth(out)
	}
}

// Fail settles the join with err. The first failure wins; everything
// after it, including a would-be success, is ignored. A nil onFail
// means the failure only seals the join.
func (j *Join) Fail(err error) {
	j.mu.Lock()
	if j.settled {
		j.mu.Unlock()
		return
	}
	j.settled = true
	j.mu.Unlock()

	if j.onFail != nil {
		j.onFail(err)
	}
}

// Settled reports whether the join has fired one of its callbacks.
func (j *Join) Settled() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.settled
}

// readyLocked marks the join settled when both branches are done and
// reports whether the success callback should fire. Callers hold j.mu.
func (j *Join) readyLocked() (bool, any) {
	if j.localDone && j.remoteDone {
		j.settled = true
		return true, j.remote
	}
	return false, nil
}
