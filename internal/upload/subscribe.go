package upload

import "github.com/filedrop/uploader/internal/models"

// Subscribe returns a channel that receives the file list after every
// change, starting with the current one. Only the latest list is kept: a
// slow reader skips intermediate snapshots but always sees the newest.
// The channel is closed by unsubscribe or by Close.
func (c *Coordinator) Subscribe() (<-chan []models.TrackedFile, func()) {
	ch := make(chan []models.TrackedFile, 1)

	c.subsMu.Lock()
	if c.subs == nil {
		c.subsMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- *c.files.Load()
	c.subsMu.Unlock()

	unsubscribe := func() {
		c.subsMu.Lock()
		defer c.subsMu.Unlock()
		if sub, ok := c.subs[id]; ok {
			close(sub)
			delete(c.subs, id)
		}
	}
	return ch, unsubscribe
}

// publish stores next as the current list and hands it to subscribers.
// Called only on the mutation goroutine.
func (c *Coordinator) publish(next []models.TrackedFile) {
	c.files.Store(&next)

	c.subsMu.Lock()
	defer c.subsMu.Unlock()
	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- next
	}
}
