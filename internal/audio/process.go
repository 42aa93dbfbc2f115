package audio

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// process is a child media tool whose exit is observed in the background.
type process struct {
	cmd     *exec.Cmd
	stderr  *bytes.Buffer
	waitErr chan error

	stopOnce sync.Once
	stopErr  error
}

func startProcess(cmd *exec.Cmd) (*process, error) {
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cmd.Path, err)
	}

	p := &process{cmd: cmd, stderr: &stderr, waitErr: make(chan error, 1)}
	go func() {
		p.waitErr <- cmd.Wait()
		close(p.waitErr)
	}()
	return p, nil
}

// exitedWithin reports whether the process ended before d elapsed, and how.
func (p *process) exitedWithin(d time.Duration) (bool, error) {
	select {
	case err := <-p.waitErr:
		if err != nil {
			return true, fmt.Errorf("%w: %s", err, p.stderrText())
		}
		return true, nil
	case <-time.After(d):
		return false, nil
	}
}

// stop interrupts the process, escalating to kill after grace. A non-zero
// exit caused by the signal is not an error.
func (p *process) stop(grace time.Duration) error {
	p.stopOnce.Do(func() {
		if p.cmd.Process != nil {
			_ = p.cmd.Process.Signal(os.Interrupt)
		}

		select {
		case err, ok := <-p.waitErr:
			if ok {
				p.stopErr = normalizeStopErr(err)
			}
		case <-time.After(grace):
			if p.cmd.Process != nil {
				_ = p.cmd.Process.Kill()
			}
			if err, ok := <-p.waitErr; ok {
				p.stopErr = normalizeStopErr(err)
			}
		}
	})
	return p.stopErr
}

func (p *process) stderrText() string {
	return strings.TrimSpace(p.stderr.String())
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

// channel holds the single utterance currently playing on an output.
// Starting a new one interrupts the previous.
type channel struct {
	mu      sync.Mutex
	current *process
}

func (c *channel) replace(next *process) {
	c.mu.Lock()
	prev := c.current
	c.current = next
	c.mu.Unlock()

	if prev != nil {
		go func() { _ = prev.stop(200 * time.Millisecond) }()
	}
}

func (c *channel) stop() error {
	c.mu.Lock()
	prev := c.current
	c.current = nil
	c.mu.Unlock()

	if prev == nil {
		return nil
	}
	return prev.stop(200 * time.Millisecond)
}
