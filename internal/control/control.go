// Package control holds the process-wide busy and stop flags and the
// process killing used to interrupt a running job.
package control

import (
	"context"
	"errors"
	"os/exec"
	"runtime"
	"sync/atomic"

	"go.uber.org/zap"
)

var (
	// ErrBusy is returned when a job is started while another one runs
	ErrBusy = errors.New("another job is already running")
	// ErrStopped is returned by long operations after a stop request
	ErrStopped = errors.New("stopped by user")
)

// ExternalTools are the binaries killed by name on stop
var ExternalTools = []string{"ffmpeg", "ffprobe", "yt-dlp"}

// Flags is the single busy/stop pair shared by every job
type Flags struct {
	busy atomic.Bool
	stop atomic.Bool
}

// TryAcquire marks the app busy, failing with ErrBusy if it already is.
// Acquiring clears any stale stop request.
func (f *Flags) TryAcquire() error {
	if !f.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}
	f.stop.Store(false)
	return nil
}

// Release clears the busy flag
func (f *Flags) Release() {
	f.busy.Store(false)
}

// Busy reports whether a job holds the flag
func (f *Flags) Busy() bool {
	return f.busy.Load()
}

// RequestStop asks the running job to stop at its next check
func (f *Flags) RequestStop() {
	f.stop.Store(true)
}

// StopRequested reports whether a stop was requested
func (f *Flags) StopRequested() bool {
	return f.stop.Load()
}

// Err returns ErrStopped once a stop was requested, nil otherwise
func (f *Flags) Err() error {
	if f.stop.Load() {
		return ErrStopped
	}
	return nil
}

// Killer terminates processes started by a component
type Killer interface {
	KillAll() int
}

// Stopper ties the flags to everything that has to die on stop
type Stopper struct {
	flags   *Flags
	killers []Killer
	names   []string
	cancel  atomic.Pointer[context.CancelFunc]
	logger  *zap.Logger
	kill    func(name string) error
}

// NewStopper creates a stopper that kills the given tools by name
func NewStopper(flags *Flags, logger *zap.Logger, killers ...Killer) *Stopper {
	return &Stopper{
		flags:   flags,
		killers: killers,
		names:   ExternalTools,
		logger:  logger,
		kill:    killProcess,
	}
}

// Bind registers the cancel func of the running job's context
func (s *Stopper) Bind(cancel context.CancelFunc) {
	s.cancel.Store(&cancel)
}

// SetNames replaces the process names killed on stop
func (s *Stopper) SetNames(names ...string) {
	s.names = names
}

// Unbind forgets the running job's cancel func
func (s *Stopper) Unbind() {
	s.cancel.Store(nil)
}

// Stop sets the stop flag, cancels the running job and kills its processes
func (s *Stopper) Stop() {
	s.flags.RequestStop()

	if c := s.cancel.Load(); c != nil {
		(*c)()
	}

	killed := 0
	for _, k := range s.killers {
		killed += k.KillAll()
	}
	for _, name := range s.names {
		if err := s.kill(name); err != nil {
			s.logger.Debug("No process killed", zap.String("name", name), zap.Error(err))
		}
	}

	s.logger.Info("Stop requested", zap.Int("tracked_killed", killed))
}

func killProcess(name string) error {
	argv := killCommand(runtime.GOOS, name)
	return exec.Command(argv[0], argv[1:]...).Run()
}

// killCommand returns the command line that kills name on goos
func killCommand(goos, name string) []string {
	if goos == "windows" {
		return []string{"taskkill", "/F", "/T", "/IM", name + ".exe"}
	}
	return []string{"pkill", "-x", name}
}
