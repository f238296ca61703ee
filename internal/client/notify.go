package client

// notifier coalesces change notifications: at most one dispatch is pending
// at a time, and schedules arriving while one is pending merge into it. A
// burst of rapid mutations therefore costs the view layer one re-render.
type notifier struct {
	fn      func()
	pending chan struct{}
	done    chan struct{}
}

func newNotifier(fn func()) *notifier {
	n := &notifier{
		fn:      fn,
		pending: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	if fn != nil {
		go n.loop()
	}
	return n
}

// Schedule requests a dispatch. Never blocks.
func (n *notifier) Schedule() {
	if n.fn == nil {
		return
	}
	select {
	case n.pending <- struct{}{}:
	default:
	}
}

func (n *notifier) loop() {
	for {
		select {
		case <-n.pending:
			n.fn()
		case <-n.done:
			return
		}
	}
}

func (n *notifier) Close() {
	close(n.done)
}
