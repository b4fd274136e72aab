package capture

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"vshark/internal/config"
)

// stopGrace is how long Stop waits after SIGTERM before killing.
const stopGrace = 2 * time.Second

// Process runs an external capture command that writes a pcap stream to
// its stdout or to a FIFO.
type Process struct {
	cfg config.CaptureConfig
	log logrus.FieldLogger

	mu          sync.Mutex
	cmd         *exec.Cmd
	exited      chan struct{}
	waitErr     error
	stopped     bool
	createdFIFO bool
	stderr      io.Closer
}

// NewProcess creates a capture process from cfg. Nothing is spawned until
// Open.
func NewProcess(cfg config.CaptureConfig, log logrus.FieldLogger) *Process {
	return &Process{cfg: cfg, log: log}
}

// Args returns the command line arguments: capture.args verbatim when set,
// otherwise the dumpcap arguments for the interface and target.
func (p *Process) Args() []string {
	if len(p.cfg.Args) > 0 {
		return slices.Clone(p.cfg.Args)
	}
	target := "-"
	if p.cfg.FIFO != "" {
		target = p.cfg.FIFO
	}
	args := []string{"-i", p.cfg.Interface, "-F", "pcap", "-n", "-q", "-w", target}
	return append(args, p.cfg.ExtraArgs...)
}

// Open spawns the process and returns its output stream. A spawn failure
// is returned as is; callers treat it as fatal.
func (p *Process) Open(ctx context.Context) (io.ReadCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd != nil {
		return nil, errors.New("capture: process already started")
	}

	if p.cfg.FIFO != "" {
		if err := p.ensureFIFO(); err != nil {
			return nil, err
		}
	}

	cmd := exec.Command(p.cfg.Command, p.Args()...)
	if w, ok := p.log.(interface {
		WriterLevel(logrus.Level) *io.PipeWriter
	}); ok {
		pw := w.WriterLevel(logrus.DebugLevel)
		cmd.Stderr = pw
		p.stderr = pw
	}

	var stdout *os.File
	if p.cfg.FIFO == "" {
		r, w, err := os.Pipe()
		if err != nil {
			return nil, fmt.Errorf("create capture pipe: %w", err)
		}
		cmd.Stdout = w
		stdout = r
		defer w.Close()
	}

	if err := cmd.Start(); err != nil {
		if stdout != nil {
			stdout.Close()
		}
		p.cleanup()
		return nil, fmt.Errorf("start capture command %q: %w", p.cfg.Command, err)
	}
	p.cmd = cmd
	p.exited = make(chan struct{})
	go func() {
		p.waitErr = cmd.Wait()
		close(p.exited)
	}()

	p.log.WithFields(logrus.Fields{
		"command": p.cfg.Command,
		"args":    cmd.Args[1:],
		"pid":     cmd.Process.Pid,
	}).Info("capture process started")

	if stdout != nil {
		return stdout, nil
	}
	return p.openFIFO(ctx)
}

func (p *Process) ensureFIFO() error {
	fi, err := os.Stat(p.cfg.FIFO)
	switch {
	case err == nil:
		if fi.Mode()&os.ModeNamedPipe == 0 {
			return fmt.Errorf("capture fifo %q exists and is not a named pipe", p.cfg.FIFO)
		}
		return nil
	case errors.Is(err, os.ErrNotExist):
		if err := unix.Mkfifo(p.cfg.FIFO, 0o600); err != nil {
			return fmt.Errorf("create capture fifo %q: %w", p.cfg.FIFO, err)
		}
		p.createdFIFO = true
		return nil
	default:
		return fmt.Errorf("stat capture fifo %q: %w", p.cfg.FIFO, err)
	}
}

// openFIFO opens the read end once the process opened the write end. It
// gives up when the process exits or ctx ends first.
func (p *Process) openFIFO(ctx context.Context) (io.ReadCloser, error) {
	type result struct {
		f   *os.File
		err error
	}
	opened := make(chan result, 1)
	go func() {
		f, err := os.Open(p.cfg.FIFO)
		opened <- result{f, err}
	}()

	var cause error
	select {
	case r := <-opened:
		if r.err != nil {
			return nil, fmt.Errorf("open capture fifo %q: %w", p.cfg.FIFO, r.err)
		}
		return r.f, nil
	case <-p.exited:
		cause = fmt.Errorf("capture process exited before opening fifo: %v", p.waitErr)
	case <-ctx.Done():
		cause = ctx.Err()
	}

	// Unblock the pending open with a throwaway writer.
	if w, err := os.OpenFile(p.cfg.FIFO, os.O_WRONLY|unix.O_NONBLOCK, 0); err == nil {
		w.Close()
	}
	if r := <-opened; r.f != nil {
		r.f.Close()
	}
	return nil, cause
}

// Stop terminates the process and reaps it. It is safe to call more than
// once.
func (p *Process) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cmd == nil {
		return ErrNotStarted
	}
	if p.stopped {
		return nil
	}
	p.stopped = true

	select {
	case <-p.exited:
	default:
		_ = p.cmd.Process.Signal(unix.SIGTERM)
		select {
		case <-p.exited:
		case <-time.After(stopGrace):
			_ = p.cmd.Process.Kill()
			<-p.exited
		}
	}
	p.log.WithField("pid", p.cmd.Process.Pid).Info("capture process stopped")
	p.cleanup()
	return nil
}

// Exited is closed when the process has been reaped.
func (p *Process) Exited() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exited
}

func (p *Process) cleanup() {
	if p.stderr != nil {
		_ = p.stderr.Close()
		p.stderr = nil
	}
	if p.createdFIFO {
		if err := os.Remove(p.cfg.FIFO); err != nil && !errors.Is(err, os.ErrNotExist) {
			p.log.WithError(err).Warn("failed to remove capture fifo")
		}
		p.createdFIFO = false
	}
}
