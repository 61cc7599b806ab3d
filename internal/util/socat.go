package util

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// SocatManager manages lifecycle of socat-created virtual serial pairs, used to
// run the simulator bridge and the cruise controller on one host.
type SocatManager struct {
	mu     sync.Mutex
	cmds   []*exec.Cmd
	links  []string
	closed bool

	// Command is the socat binary; overridable for tests.
	Command string
}

// NewSocatManager initializes an empty manager.
func NewSocatManager() *SocatManager {
	return &SocatManager{Command: "socat"}
}

// CreatePair starts a socat process that links two PTYs (bidirectional) and
// waits up to wait for both links to appear.
func (m *SocatManager) CreatePair(ctx context.Context, left, right string, wait time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return fmt.Errorf("socat manager closed")
	}

	cmd := exec.CommandContext(ctx, m.Command, "-d", "-d",
		fmt.Sprintf("pty,raw,echo=0,link=%s", left),
		fmt.Sprintf("pty,raw,echo=0,link=%s", right),
	)
	cmd.Stdout = StdLogger(slog.LevelDebug).Writer()
	cmd.Stderr = StdLogger(slog.LevelDebug).Writer()

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start socat: %w", err)
	}
	slog.Info("started virtual serial pair", "pid", cmd.Process.Pid, "left", left, "right", right)

	m.cmds = append(m.cmds, cmd)
	m.links = append(m.links, left, right)

	deadline := time.Now().Add(wait)
	for {
		_, errL := os.Lstat(left)
		_, errR := os.Lstat(right)
		if errL == nil && errR == nil {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("virtual serial links %s, %s not ready after %s", left, right, wait)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// Cleanup stops all socat processes and removes created links.
func (m *SocatManager) Cleanup() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true

	for _, cmd := range m.cmds {
		if cmd.Process != nil {
			slog.Debug("killing socat", "pid", cmd.Process.Pid)
			_ = cmd.Process.Kill()
			_, _ = cmd.Process.Wait()
		}
	}

	for _, path := range m.links {
		if _, err := os.Lstat(path); err == nil {
			_ = os.Remove(path)
			slog.Debug("removed virtual serial link", "path", path)
		}
	}

	slog.Info("virtual serial cleanup complete", "pairs", len(m.links)/2)
}
