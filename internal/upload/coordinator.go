package upload

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/filedrop/uploader/internal/format"
	"github.com/filedrop/uploader/internal/logging"
	"github.com/filedrop/uploader/internal/models"
	"github.com/filedrop/uploader/internal/strategy"
)

// ErrClosed is the panic value for mutating a closed Coordinator.
var ErrClosed = errors.New("upload: coordinator used after Close")

var errNoResult = errors.New("upload finished without a result")

// Coordinator tracks admitted files and drives each one through
// pending -> uploading -> success|error using a Strategy.
//
// Every mutation of the file list runs on a single goroutine, in the order
// it was submitted. Each mutation replaces the whole list, so a snapshot
// returned by Files or delivered to a subscriber never changes afterwards.
type Coordinator struct {
	strategy strategy.Strategy
	log      logging.Logger
	now      func() time.Time
	newID    func() string

	ctx    context.Context
	cancel context.CancelFunc

	ops     chan mutation
	stop    chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
	once    sync.Once

	files   atomic.Pointer[[]models.TrackedFile]
	uploads sync.WaitGroup

	// cancels is owned by the mutation goroutine.
	cancels map[string]context.CancelFunc

	subsMu  sync.Mutex
	subs    map[int]chan []models.TrackedFile
	nextSub int
}

// mutation derives the next list from the current one. It reports false
// when nothing changed, in which case nothing is published.
type mutation struct {
	apply func(cur []models.TrackedFile) ([]models.TrackedFile, bool)
	done  chan struct{}
}

// NewCoordinator creates a Coordinator uploading with s. Call Close to
// release it.
func NewCoordinator(s strategy.Strategy, opts ...Option) *Coordinator {
	ctx, cancel := context.WithCancel(context.Background())

	c := &Coordinator{
		strategy: s,
		log:      logging.Discard(),
		now:      time.Now,
		newID:    format.GenerateFileID,
		ctx:      ctx,
		cancel:   cancel,
		ops:      make(chan mutation),
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
		cancels:  make(map[string]context.CancelFunc),
		subs:     make(map[int]chan []models.TrackedFile),
	}
	for _, opt := range opts {
		opt(c)
	}

	empty := []models.TrackedFile{}
	c.files.Store(&empty)

	go c.loop()
	return c
}

// Strategy returns the strategy files are uploaded with.
func (c *Coordinator) Strategy() strategy.Strategy {
	return c.strategy
}

// loop is the single writer of the file list.
func (c *Coordinator) loop() {
	defer close(c.stopped)
	for {
		select {
		case m := <-c.ops:
			cur := *c.files.Load()
			if next, changed := m.apply(cur); changed {
				c.publish(next)
			}
			close(m.done)
		case <-c.stop:
			return
		}
	}
}

// submit runs fn on the mutation goroutine and waits for it. It reports
// false if the coordinator stopped first.
func (c *Coordinator) submit(fn func(cur []models.TrackedFile) ([]models.TrackedFile, bool)) bool {
	m := mutation{apply: fn, done: make(chan struct{})}
	select {
	case c.ops <- m:
	case <-c.stop:
		return false
	}
	<-m.done
	return true
}

func (c *Coordinator) mustBeOpen() {
	if c.closed.Load() {
		panic(ErrClosed)
	}
}

// Admit appends files in pending state and immediately starts uploading
// each one. It returns the new ids in input order.
func (c *Coordinator) Admit(files []models.RawFile) []string {
	c.mustBeOpen()
	if len(files) == 0 {
		return nil
	}

	ids := make([]string, len(files))
	ok := c.submit(func(cur []models.TrackedFile) ([]models.TrackedFile, bool) {
		next := make([]models.TrackedFile, len(cur), len(cur)+len(files))
		copy(next, cur)

		taken := make(map[string]bool, len(cur)+len(files))
		for _, f := range cur {
			taken[f.ID] = true
		}

		now := c.now()
		for i, f := range files {
			id := c.newID()
			for taken[id] {
				id = c.newID()
			}
			taken[id] = true
			ids[i] = id
			next = append(next, models.NewTrackedFile(id, f, now))
		}

		for i := len(cur); i < len(next); i++ {
			next[i].Status = models.UploadStatusUploading
			c.start(next[i])
		}
		return next, true
	})
	if !ok {
		panic(ErrClosed)
	}

	return ids
}

// start launches the upload of tf. Called on the mutation goroutine.
func (c *Coordinator) start(tf models.TrackedFile) {
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancels[tf.ID] = cancel
	c.uploads.Add(1)

	c.log.Infof("[Upload %s] Starting: %s (%s)", shortID(tf.ID), tf.Source.Name, format.FormatFileSize(tf.Source.Size))
	go c.run(ctx, tf.ID, tf.Source)
}

// run forwards one file's events, in order, to the mutation goroutine.
func (c *Coordinator) run(ctx context.Context, id string, file models.RawFile) {
	defer c.uploads.Done()

	events := make(chan strategy.Event)
	go func() {
		defer close(events)
		defer func() {
			if r := recover(); r != nil {
				events <- strategy.Failed(fmt.Errorf("upload panicked: %v", r))
			}
		}()
		c.strategy.Upload(ctx, file, events)
	}()

	terminal := false
	for ev := range events {
		if terminal {
			c.log.Warnf("[Upload %s] Ignoring %s event after completion", shortID(id), ev.Type)
			continue
		}
		c.deliver(id, ev)
		terminal = ev.Terminal()
	}
	if !terminal {
		c.deliver(id, strategy.Failed(errNoResult))
	}

	c.submit(func(cur []models.TrackedFile) ([]models.TrackedFile, bool) {
		if cancel, ok := c.cancels[id]; ok {
			cancel()
			delete(c.cancels, id)
		}
		return cur, false
	})
}

// deliver applies one strategy event to file id.
func (c *Coordinator) deliver(id string, ev strategy.Event) {
	switch ev.Type {
	case strategy.EventProgress:
		c.updateProgress(id, ev.Progress)
	case strategy.EventSuccess:
		c.markComplete(id, ev.FileID)
	case strategy.EventError:
		msg := "Upload failed"
		if ev.Err != nil {
			msg = ev.Err.Error()
		}
		c.markError(id, msg)
	}
}

// updateUploading applies fn to file id if it is still uploading.
func (c *Coordinator) updateUploading(id string, fn func(f *models.TrackedFile) bool) {
	c.submit(func(cur []models.TrackedFile) ([]models.TrackedFile, bool) {
		i := indexOf(cur, id)
		if i < 0 || cur[i].Status != models.UploadStatusUploading {
			return cur, false
		}

		next := slices.Clone(cur)
		if !fn(&next[i]) {
			return cur, false
		}
		return next, true
	})
}

// updateProgress stores round(clamp(pct, 0, 100)). Progress never moves
// backwards while uploading.
func (c *Coordinator) updateProgress(id string, pct float64) {
	if math.IsNaN(pct) {
		return
	}
	p := int(math.Round(math.Max(0, math.Min(100, pct))))

	c.updateUploading(id, func(f *models.TrackedFile) bool {
		if p <= f.Progress {
			return false
		}
		f.Progress = p
		return true
	})
}

func (c *Coordinator) markComplete(id, remoteID string) {
	c.updateUploading(id, func(f *models.TrackedFile) bool {
		now := c.now()
		f.Status = models.UploadStatusSuccess
		f.Progress = 100
		f.RemoteID = remoteID
		f.CompletedAt = &now
		c.log.Infof("[Upload %s] Complete: %s", shortID(id), f.Source.Name)
		return true
	})
}

func (c *Coordinator) markError(id, msg string) {
	c.updateUploading(id, func(f *models.TrackedFile) bool {
		f.Status = models.UploadStatusError
		f.Error = msg
		c.log.Errorf("[Upload %s] Error: %s: %s", shortID(id), f.Source.Name, msg)
		return true
	})
}

// Remove deletes file id whatever its state and aborts its transfer if one
// is still running. It reports whether the file was tracked.
func (c *Coordinator) Remove(id string) bool {
	c.mustBeOpen()

	removed := false
	c.submit(func(cur []models.TrackedFile) ([]models.TrackedFile, bool) {
		i := indexOf(cur, id)
		if i < 0 {
			return cur, false
		}
		if cancel, ok := c.cancels[id]; ok {
			cancel()
			delete(c.cancels, id)
		}
		removed = true
		return slices.Delete(slices.Clone(cur), i, i+1), true
	})
	return removed
}

// ClearCompleted removes every file in success or error state and returns
// how many were removed. Pending and uploading files keep their order.
func (c *Coordinator) ClearCompleted() int {
	c.mustBeOpen()

	removed := 0
	c.submit(func(cur []models.TrackedFile) ([]models.TrackedFile, bool) {
		next := make([]models.TrackedFile, 0, len(cur))
		for _, f := range cur {
			if f.Status.Terminal() {
				continue
			}
			next = append(next, f)
		}
		removed = len(cur) - len(next)
		return next, removed > 0
	})
	return removed
}

// Files returns a copy of the current list in insertion order.
func (c *Coordinator) Files() []models.TrackedFile {
	return slices.Clone(*c.files.Load())
}

// File returns the tracked file with the given id.
func (c *Coordinator) File(id string) (models.TrackedFile, bool) {
	cur := *c.files.Load()
	if i := indexOf(cur, id); i >= 0 {
		return cur[i], true
	}
	return models.TrackedFile{}, false
}

// Stats returns per-status counts of the current list.
func (c *Coordinator) Stats() Stats {
	return StatsOf(*c.files.Load())
}

// Wait blocks until no file is pending or uploading, the coordinator is
// closed, or ctx is done.
func (c *Coordinator) Wait(ctx context.Context) error {
	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	for {
		select {
		case files, ok := <-updates:
			if !ok || StatsOf(files).Active() == 0 {
				return nil
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Close aborts every running transfer, stops the coordinator and closes all
// subscriptions. Further calls to Admit, Remove or ClearCompleted panic.
func (c *Coordinator) Close() {
	c.once.Do(func() {
		c.closed.Store(true)
		c.cancel()
		close(c.stop)
		<-c.stopped
		c.uploads.Wait()

		c.subsMu.Lock()
		for _, ch := range c.subs {
			close(ch)
		}
		c.subs = nil
		c.subsMu.Unlock()
	})
}

func indexOf(files []models.TrackedFile, id string) int {
	return slices.IndexFunc(files, func(f models.TrackedFile) bool { return f.ID == id })
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
