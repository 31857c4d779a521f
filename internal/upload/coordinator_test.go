package upload

import (
	"context"
	"errors"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/filedrop/uploader/internal/models"
	"github.com/filedrop/uploader/internal/strategy"
)

var fixedNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// strategyFunc adapts a function to strategy.Strategy.
type strategyFunc func(ctx context.Context, file models.RawFile, events chan<- strategy.Event)

func (f strategyFunc) Upload(ctx context.Context, file models.RawFile, events chan<- strategy.Event) {
	f(ctx, file, events)
}

// scripted emits evs in order and returns.
func scripted(evs ...strategy.Event) strategy.Strategy {
	return strategyFunc(func(ctx context.Context, _ models.RawFile, events chan<- strategy.Event) {
		for _, ev := range evs {
			events <- ev
		}
	})
}

// blocking never finishes on its own. It reports the file name on
// cancelled once its context is done.
func blocking(cancelled chan<- string) strategy.Strategy {
	return strategyFunc(func(ctx context.Context, file models.RawFile, events chan<- strategy.Event) {
		<-ctx.Done()
		if cancelled != nil {
			cancelled <- file.Name
		}
		events <- strategy.Failed(ctx.Err())
	})
}

// stepper forwards events from feed until a terminal one or ctx is done.
func stepper(feed <-chan strategy.Event) strategy.Strategy {
	return strategyFunc(func(ctx context.Context, _ models.RawFile, events chan<- strategy.Event) {
		for {
			select {
			case ev := <-feed:
				events <- ev
				if ev.Terminal() {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	})
}

func newTestCoordinator(t *testing.T, s strategy.Strategy, opts ...Option) *Coordinator {
	t.Helper()
	opts = append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)
	c := NewCoordinator(s, opts...)
	t.Cleanup(c.Close)
	return c
}

func waitDone(t *testing.T, c *Coordinator) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Wait(ctx))
}

func rawFile(name string, size int) models.RawFile {
	return models.NewRawFile(name, "text/plain", []byte(strings.Repeat("x", size)))
}

func TestCoordinator_Admit(t *testing.T) {
	t.Run("tracks every file as uploading in order", func(t *testing.T) {
		c := newTestCoordinator(t, blocking(nil))

		ids := c.Admit([]models.RawFile{rawFile("a.txt", 1), rawFile("b.txt", 2), rawFile("c.txt", 3)})
		require.Len(t, ids, 3)

		files := c.Files()
		require.Len(t, files, 3)

		seen := map[string]bool{}
		for i, f := range files {
			assert.Equal(t, ids[i], f.ID)
			assert.Equal(t, models.UploadStatusUploading, f.Status)
			assert.Equal(t, 0, f.Progress)
			assert.Equal(t, fixedNow, f.CreatedAt)
			assert.False(t, seen[f.ID], "duplicate id %s", f.ID)
			seen[f.ID] = true
		}
		assert.Equal(t, "a.txt", files[0].Source.Name)
		assert.Equal(t, "b.txt", files[1].Source.Name)
		assert.Equal(t, "c.txt", files[2].Source.Name)
	})

	t.Run("appends after existing files", func(t *testing.T) {
		c := newTestCoordinator(t, blocking(nil))

		first := c.Admit([]models.RawFile{rawFile("a.txt", 1)})
		second := c.Admit([]models.RawFile{rawFile("b.txt", 1)})

		files := c.Files()
		require.Len(t, files, 2)
		assert.Equal(t, first[0], files[0].ID)
		assert.Equal(t, second[0], files[1].ID)
	})

	t.Run("regenerates colliding ids", func(t *testing.T) {
		seq := []string{"dup", "dup", "other"}
		var mu sync.Mutex
		gen := func() string {
			mu.Lock()
			defer mu.Unlock()
			id := seq[0]
			seq = seq[1:]
			return id
		}
		c := newTestCoordinator(t, blocking(nil), WithIDGenerator(gen))

		ids := c.Admit([]models.RawFile{rawFile("a.txt", 1), rawFile("b.txt", 1)})
		assert.Equal(t, []string{"dup", "other"}, ids)
	})

	t.Run("empty input is a no-op", func(t *testing.T) {
		c := newTestCoordinator(t, blocking(nil))
		assert.Empty(t, c.Admit(nil))
		assert.Empty(t, c.Files())
	})
}

func TestCoordinator_Progress(t *testing.T) {
	t.Run("never decreases and ends at 100", func(t *testing.T) {
		c := newTestCoordinator(t, scripted(
			strategy.Progress(25),
			strategy.Progress(50),
			strategy.Progress(100),
			strategy.Succeeded("x"),
		))

		updates, unsubscribe := c.Subscribe()
		defer unsubscribe()

		c.Admit([]models.RawFile{rawFile("a.txt", 4)})

		last := 0
		deadline := time.After(5 * time.Second)
		for done := false; !done; {
			select {
			case files := <-updates:
				if len(files) == 0 {
					continue
				}
				f := files[0]
				assert.GreaterOrEqual(t, f.Progress, last)
				last = f.Progress
				done = f.Status.Terminal()
			case <-deadline:
				t.Fatal("timed out waiting for completion")
			}
		}

		f := c.Files()[0]
		assert.Equal(t, models.UploadStatusSuccess, f.Status)
		assert.Equal(t, 100, f.Progress)
		assert.Equal(t, "x", f.RemoteID)
	})

	t.Run("rounds and clamps", func(t *testing.T) {
		feed := make(chan strategy.Event)
		c := newTestCoordinator(t, stepper(feed))
		id := c.Admit([]models.RawFile{rawFile("a.txt", 4)})[0]

		progressOf := func() int {
			f, _ := c.File(id)
			return f.Progress
		}

		feed <- strategy.Progress(-5)
		feed <- strategy.Progress(math.NaN())
		feed <- strategy.Progress(42.6)
		require.Eventually(t, func() bool { return progressOf() == 43 }, 5*time.Second, 5*time.Millisecond)

		feed <- strategy.Progress(30)
		feed <- strategy.Progress(61.2)
		require.Eventually(t, func() bool { return progressOf() == 61 }, 5*time.Second, 5*time.Millisecond)

		feed <- strategy.Progress(150)
		require.Eventually(t, func() bool { return progressOf() == 100 }, 5*time.Second, 5*time.Millisecond)

		f, ok := c.File(id)
		require.True(t, ok)
		assert.Equal(t, models.UploadStatusUploading, f.Status)
		assert.Nil(t, f.CompletedAt)
	})
}

func TestCoordinator_TerminalEventsAreFinal(t *testing.T) {
	t.Run("events after success", func(t *testing.T) {
		c := newTestCoordinator(t, scripted(
			strategy.Progress(60),
			strategy.Succeeded("x"),
			strategy.Progress(10),
			strategy.Failed(errors.New("late")),
			strategy.Succeeded("y"),
		))

		id := c.Admit([]models.RawFile{rawFile("a.txt", 1)})[0]
		waitDone(t, c)

		f, ok := c.File(id)
		require.True(t, ok)
		assert.Equal(t, models.UploadStatusSuccess, f.Status)
		assert.Equal(t, 100, f.Progress)
		assert.Equal(t, "x", f.RemoteID)
		assert.Empty(t, f.Error)
		require.NotNil(t, f.CompletedAt)
		assert.Equal(t, fixedNow, *f.CompletedAt)
	})

	t.Run("events after error", func(t *testing.T) {
		c := newTestCoordinator(t, scripted(
			strategy.Progress(30),
			strategy.Failed(errors.New("first")),
			strategy.Progress(90),
			strategy.Succeeded("x"),
		))

		id := c.Admit([]models.RawFile{rawFile("a.txt", 1)})[0]
		waitDone(t, c)

		f, _ := c.File(id)
		assert.Equal(t, models.UploadStatusError, f.Status)
		assert.Equal(t, "first", f.Error)
		assert.Equal(t, 30, f.Progress)
		assert.Empty(t, f.RemoteID)
	})
}

func TestCoordinator_StrategyFailures(t *testing.T) {
	tests := []struct {
		name     string
		strategy strategy.Strategy
		want     string
	}{
		{
			name: "panic",
			strategy: strategyFunc(func(context.Context, models.RawFile, chan<- strategy.Event) {
				panic("boom")
			}),
			want: "upload panicked: boom",
		},
		{
			name:     "no result",
			strategy: scripted(strategy.Progress(10)),
			want:     "upload finished without a result",
		},
		{
			name:     "nil error",
			strategy: scripted(strategy.Event{Type: strategy.EventError}),
			want:     "Upload failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestCoordinator(t, tt.strategy)
			id := c.Admit([]models.RawFile{rawFile("a.txt", 1)})[0]
			waitDone(t, c)

			f, _ := c.File(id)
			assert.Equal(t, models.UploadStatusError, f.Status)
			assert.Equal(t, tt.want, f.Error)
		})
	}
}

func TestCoordinator_ClearCompleted(t *testing.T) {
	s := strategyFunc(func(ctx context.Context, file models.RawFile, events chan<- strategy.Event) {
		switch {
		case strings.HasPrefix(file.Name, "ok"):
			events <- strategy.Succeeded(file.Name)
		case strings.HasPrefix(file.Name, "bad"):
			events <- strategy.Failed(errors.New("nope"))
		default:
			<-ctx.Done()
		}
	})
	c := newTestCoordinator(t, s)

	ids := c.Admit([]models.RawFile{
		rawFile("slow-1", 1),
		rawFile("ok", 1),
		rawFile("bad", 1),
		rawFile("slow-2", 1),
	})
	require.Eventually(t, func() bool {
		st := c.Stats()
		return st.Success == 1 && st.Error == 1
	}, 5*time.Second, 5*time.Millisecond)

	assert.Equal(t, 2, c.ClearCompleted())

	files := c.Files()
	require.Len(t, files, 2)
	assert.Equal(t, ids[0], files[0].ID)
	assert.Equal(t, ids[3], files[1].ID)
	for _, f := range files {
		assert.Equal(t, models.UploadStatusUploading, f.Status)
	}

	assert.Equal(t, 0, c.ClearCompleted())
}

func TestCoordinator_Remove(t *testing.T) {
	t.Run("in flight upload is cancelled", func(t *testing.T) {
		cancelled := make(chan string, 1)
		c := newTestCoordinator(t, blocking(cancelled))

		ids := c.Admit([]models.RawFile{rawFile("a.txt", 1), rawFile("b.txt", 1)})
		require.True(t, c.Remove(ids[0]))

		select {
		case name := <-cancelled:
			assert.Equal(t, "a.txt", name)
		case <-time.After(5 * time.Second):
			t.Fatal("upload was not cancelled")
		}

		files := c.Files()
		require.Len(t, files, 1)
		assert.Equal(t, ids[1], files[0].ID)
		assert.Equal(t, models.UploadStatusUploading, files[0].Status)

		_, ok := c.File(ids[0])
		assert.False(t, ok)
	})

	t.Run("late events are ignored", func(t *testing.T) {
		feed := make(chan strategy.Event)
		release := make(chan struct{})
		s := strategyFunc(func(ctx context.Context, _ models.RawFile, events chan<- strategy.Event) {
			<-release
			for ev := range feed {
				events <- ev
			}
		})
		c := newTestCoordinator(t, s)

		id := c.Admit([]models.RawFile{rawFile("a.txt", 1)})[0]
		require.True(t, c.Remove(id))
		close(release)

		feed <- strategy.Progress(50)
		feed <- strategy.Succeeded("x")
		close(feed)

		waitDone(t, c)
		assert.Empty(t, c.Files())
	})

	t.Run("completed file", func(t *testing.T) {
		c := newTestCoordinator(t, scripted(strategy.Succeeded("x")))
		id := c.Admit([]models.RawFile{rawFile("a.txt", 1)})[0]
		waitDone(t, c)

		assert.True(t, c.Remove(id))
		assert.False(t, c.Remove(id))
		assert.Empty(t, c.Files())
	})

	t.Run("unknown id", func(t *testing.T) {
		c := newTestCoordinator(t, blocking(nil))
		assert.False(t, c.Remove("missing"))
	})
}

func TestCoordinator_Scenarios(t *testing.T) {
	t.Run("single file succeeds", func(t *testing.T) {
		c := newTestCoordinator(t, scripted(
			strategy.Progress(25),
			strategy.Progress(50),
			strategy.Progress(75),
			strategy.Progress(100),
			strategy.Succeeded("test.txt"),
		))

		c.Admit([]models.RawFile{models.NewRawFile("test.txt", "text/plain", []byte("test content"))})
		waitDone(t, c)

		files := c.Files()
		require.Len(t, files, 1)
		assert.Equal(t, int64(12), files[0].Source.Size)
		assert.Equal(t, models.UploadStatusSuccess, files[0].Status)
		assert.Equal(t, 100, files[0].Progress)
		assert.Equal(t, "test.txt", files[0].RemoteID)
	})

	t.Run("single file fails", func(t *testing.T) {
		c := newTestCoordinator(t, scripted(
			strategy.Progress(25),
			strategy.Progress(50),
			strategy.Progress(75),
			strategy.Failed(errors.New("Upload failed")),
		))

		c.Admit([]models.RawFile{rawFile("test.txt", 12)})
		waitDone(t, c)

		files := c.Files()
		require.Len(t, files, 1)
		assert.Equal(t, models.UploadStatusError, files[0].Status)
		assert.Equal(t, "Upload failed", files[0].Error)
		assert.Equal(t, 75, files[0].Progress)
	})

	t.Run("two files upload concurrently", func(t *testing.T) {
		var (
			mu      sync.Mutex
			started int
			both    = make(chan struct{})
		)
		s := strategyFunc(func(ctx context.Context, file models.RawFile, events chan<- strategy.Event) {
			mu.Lock()
			started++
			if started == 2 {
				close(both)
			}
			mu.Unlock()

			select {
			case <-both:
			case <-ctx.Done():
				events <- strategy.Failed(ctx.Err())
				return
			}
			events <- strategy.Progress(50)
			events <- strategy.Succeeded(file.Name)
		})
		c := newTestCoordinator(t, s)

		ids := c.Admit([]models.RawFile{rawFile("one.txt", 3), rawFile("two.txt", 5)})
		waitDone(t, c)

		for i, name := range []string{"one.txt", "two.txt"} {
			f, ok := c.File(ids[i])
			require.True(t, ok)
			assert.Equal(t, models.UploadStatusSuccess, f.Status, name)
			assert.Equal(t, name, f.RemoteID)
		}
		assert.Equal(t, Stats{Total: 2, Success: 2}, c.Stats())
	})
}

func TestCoordinator_Subscribe(t *testing.T) {
	t.Run("delivers current list first", func(t *testing.T) {
		c := newTestCoordinator(t, blocking(nil))
		c.Admit([]models.RawFile{rawFile("a.txt", 1)})

		updates, unsubscribe := c.Subscribe()
		files := <-updates
		require.Len(t, files, 1)
		assert.Equal(t, "a.txt", files[0].Source.Name)

		unsubscribe()
		_, ok := <-updates
		assert.False(t, ok)
	})

	t.Run("snapshots are not mutated", func(t *testing.T) {
		feed := make(chan strategy.Event)
		c := newTestCoordinator(t, stepper(feed))

		updates, unsubscribe := c.Subscribe()
		defer unsubscribe()
		<-updates

		c.Admit([]models.RawFile{rawFile("a.txt", 1)})
		before := <-updates
		require.Len(t, before, 1)

		feed <- strategy.Progress(80)
		require.Eventually(t, func() bool { return c.Files()[0].Progress == 80 }, 5*time.Second, 5*time.Millisecond)
		assert.Equal(t, 0, before[0].Progress)
	})

	t.Run("closed by Close", func(t *testing.T) {
		c := NewCoordinator(blocking(nil))
		updates, _ := c.Subscribe()
		<-updates

		c.Close()
		_, ok := <-updates
		assert.False(t, ok)

		after, _ := c.Subscribe()
		_, ok = <-after
		assert.False(t, ok)
	})
}

func TestCoordinator_Close(t *testing.T) {
	t.Run("cancels running uploads", func(t *testing.T) {
		cancelled := make(chan string, 2)
		c := NewCoordinator(blocking(cancelled))
		c.Admit([]models.RawFile{rawFile("a.txt", 1), rawFile("b.txt", 1)})

		c.Close()
		assert.Len(t, cancelled, 2)
	})

	t.Run("mutations panic afterwards", func(t *testing.T) {
		c := NewCoordinator(blocking(nil))
		c.Close()
		c.Close()

		assert.PanicsWithValue(t, ErrClosed, func() { c.Admit([]models.RawFile{rawFile("a.txt", 1)}) })
		assert.PanicsWithValue(t, ErrClosed, func() { c.Remove("x") })
		assert.PanicsWithValue(t, ErrClosed, func() { c.ClearCompleted() })
		assert.NotPanics(t, func() { c.Files() })
	})

	t.Run("wait returns", func(t *testing.T) {
		c := NewCoordinator(blocking(nil))
		c.Admit([]models.RawFile{rawFile("a.txt", 1)})
		c.Close()
		assert.NoError(t, c.Wait(context.Background()))
	})
}

func TestCoordinator_WaitHonoursContext(t *testing.T) {
	c := newTestCoordinator(t, blocking(nil))
	c.Admit([]models.RawFile{rawFile("a.txt", 1)})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Wait(ctx), context.DeadlineExceeded)
}

func TestContext(t *testing.T) {
	c := newTestCoordinator(t, blocking(nil))

	ctx := NewContext(context.Background(), c)
	assert.Same(t, c, FromContext(ctx))

	assert.Panics(t, func() { FromContext(context.Background()) })
}

func TestStats(t *testing.T) {
	files := []models.TrackedFile{
		{Status: models.UploadStatusPending},
		{Status: models.UploadStatusUploading},
		{Status: models.UploadStatusUploading},
		{Status: models.UploadStatusSuccess},
		{Status: models.UploadStatusError},
	}

	st := StatsOf(files)
	assert.Equal(t, Stats{Total: 5, Pending: 1, Uploading: 2, Success: 1, Error: 1}, st)
	assert.Equal(t, 3, st.Active())
	assert.Equal(t, Stats{}, StatsOf(nil))
}
