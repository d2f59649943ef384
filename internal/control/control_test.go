package control

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

func TestFlagsAcquire(t *testing.T) {
	var f Flags

	if err := f.TryAcquire(); err != nil {
		t.Fatalf("first TryAcquire() error = %v", err)
	}
	if err := f.TryAcquire(); !errors.Is(err, ErrBusy) {
		t.Errorf("second TryAcquire() = %v, want ErrBusy", err)
	}
	if !f.Busy() {
		t.Errorf("expected busy")
	}

	f.Release()
	if err := f.TryAcquire(); err != nil {
		t.Errorf("TryAcquire() after Release error = %v", err)
	}
}

func TestFlagsAcquireIsExclusive(t *testing.T) {
	var f Flags
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if f.TryAcquire() == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
}

func TestFlagsStop(t *testing.T) {
	var f Flags
	if f.Err() != nil {
		t.Fatalf("fresh flags should not be stopped")
	}

	f.RequestStop()
	if !f.StopRequested() || !errors.Is(f.Err(), ErrStopped) {
		t.Errorf("expected stop to be visible")
	}

	// a new job must not inherit the previous stop
	if err := f.TryAcquire(); err != nil {
		t.Fatal(err)
	}
	if f.StopRequested() {
		t.Errorf("TryAcquire should clear a stale stop")
	}
}

type fakeKiller struct{ calls int }

func (k *fakeKiller) KillAll() int {
	k.calls++
	return 2
}

func TestStopperStop(t *testing.T) {
	var f Flags
	killer := &fakeKiller{}
	s := NewStopper(&f, zap.NewNop(), killer)

	var killedNames []string
	s.kill = func(name string) error {
		killedNames = append(killedNames, name)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.Bind(cancel)
	s.Stop()

	if !f.StopRequested() {
		t.Errorf("Stop should set the stop flag")
	}
	if ctx.Err() == nil {
		t.Errorf("Stop should cancel the bound context")
	}
	if killer.calls != 1 {
		t.Errorf("expected KillAll once, got %d", killer.calls)
	}
	if strings.Join(killedNames, ",") != "ffmpeg,ffprobe,yt-dlp" {
		t.Errorf("unexpected kill list: %v", killedNames)
	}

	s.Unbind()
	s.Stop()
}

func TestKillCommand(t *testing.T) {
	if got := strings.Join(killCommand("windows", "ffmpeg"), " "); got != "taskkill /F /T /IM ffmpeg.exe" {
		t.Errorf("windows kill = %q", got)
	}
	if got := strings.Join(killCommand("linux", "yt-dlp"), " "); got != "pkill -x yt-dlp" {
		t.Errorf("linux kill = %q", got)
	}
}
