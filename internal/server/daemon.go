package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/alanmeadows/chetter/internal/config"
)

// DaemonOptions controls how the daemon is started.
type DaemonOptions struct {
	Port       int
	ConfigPath string // passed through to the forked process
	Verbose    bool
	Foreground bool
}

// dataDir returns $XDG_DATA_HOME/chetter or ~/.local/share/chetter.
func dataDir() (string, error) {
	dir := os.Getenv("XDG_DATA_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil || home == "" {
			return "", fmt.Errorf("cannot determine home directory; set $HOME or $XDG_DATA_HOME: %w", err)
		}
		dir = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(dir, "chetter"), nil
}

// PIDFilePath returns the path to the daemon PID file.
func PIDFilePath() (string, error) {
	dir, err := dataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "chetterd.pid"), nil
}

// StartDaemon forks the current process as a daemon, or runs the server
// inline when opts.Foreground is set.
func StartDaemon(cfg *config.Config, opts DaemonOptions) error {
	pidFile, err := PIDFilePath()
	if err != nil {
		return err
	}

	return withLock(pidFile+".lock", 5*time.Second, func() error {
		if running, pid, _, _ := DaemonStatus(); running {
			return fmt.Errorf("daemon already running (PID %d)", pid)
		}

		if opts.Foreground {
			return runForeground(cfg, opts.Port)
		}
		return forkDaemon(cfg.Server.LogDir, opts)
	})
}

func forkDaemon(logDir string, opts DaemonOptions) error {
	logDir = config.ExpandHome(logDir)
	if logDir == "" {
		dir, err := dataDir()
		if err != nil {
			return err
		}
		logDir = filepath.Join(dir, "logs")
	}
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return fmt.Errorf("creating log directory: %w", err)
	}

	logFile := filepath.Join(logDir, "chetterd.log")

	cmd := exec.Command(os.Args[0], forkArgs(opts)...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("opening log file: %w", err)
	}
	cmd.Stdout = f
	cmd.Stderr = f
	cmd.Stdin = nil

	if err := cmd.Start(); err != nil {
		f.Close()
		return fmt.Errorf("starting daemon: %w", err)
	}

	pid := cmd.Process.Pid

	// The child writes its own PID file; do not Wait on it.
	_ = cmd.Process.Release()
	f.Close()

	fmt.Printf("daemon started (PID: %d)\n", pid)
	fmt.Printf("log file: %s\n", logFile)
	return nil
}

// forkArgs re-executes "server start" in the foreground with the same flags.
func forkArgs(opts DaemonOptions) []string {
	args := []string{"server", "start", "--foreground", "--port", strconv.Itoa(opts.Port)}
	if opts.ConfigPath != "" {
		args = append(args, "--config", opts.ConfigPath)
	}
	if opts.Verbose {
		args = append(args, "--verbose")
	}
	return args
}

func runForeground(cfg *config.Config, port int) error {
	if err := writePIDFile(os.Getpid()); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM, syscall.SIGINT,
	)
	defer stop()

	return RunServer(ctx, port, cfg)
}

// StopDaemon sends SIGTERM to the running daemon and waits for it to exit.
// The daemon may take up to the shutdown timeout to drain background work.
func StopDaemon(wait time.Duration) error {
	running, pid, _, err := DaemonStatus()
	if err != nil {
		return err
	}
	if !running {
		return fmt.Errorf("daemon is not running")
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("finding process: %w", err)
	}

	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if errors.Is(err, syscall.ESRCH) || errors.Is(err, os.ErrProcessDone) {
			removePIDFile()
			return nil
		}
		return fmt.Errorf("sending SIGTERM: %w", err)
	}

	deadline := time.After(wait)
	ticker := time.NewTicker(200 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-deadline:
			_ = proc.Signal(syscall.SIGKILL)
			removePIDFile()
			return fmt.Errorf("daemon did not stop within %s, sent SIGKILL", wait)
		case <-ticker.C:
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				removePIDFile()
				return nil
			}
		}
	}
}

// DaemonStatus checks whether the daemon is running.
// Returns: running bool, pid int, uptime duration, error.
func DaemonStatus() (bool, int, time.Duration, error) {
	pidFile, err := PIDFilePath()
	if err != nil {
		return false, 0, 0, err
	}
	data, err := os.ReadFile(pidFile)
	if err != nil {
		if os.IsNotExist(err) {
			return false, 0, 0, nil
		}
		return false, 0, 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return false, 0, 0, fmt.Errorf("invalid PID file: %w", err)
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		removePIDFile()
		return false, 0, 0, nil
	}

	if err := proc.Signal(syscall.Signal(0)); err != nil {
		// Stale PID file.
		removePIDFile()
		return false, 0, 0, nil
	}

	info, err := os.Stat(pidFile)
	if err != nil {
		return true, pid, 0, nil
	}
	return true, pid, time.Since(info.ModTime()), nil
}

func writePIDFile(pid int) error {
	pidFile, err := PIDFilePath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(pidFile), 0o755); err != nil {
		return fmt.Errorf("creating PID directory: %w", err)
	}

	tmp := pidFile + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, pidFile)
}

func removePIDFile() {
	pidFile, err := PIDFilePath()
	if err != nil {
		return
	}
	if err := os.Remove(pidFile); err != nil && !os.IsNotExist(err) {
		slog.Debug("failed to remove PID file", "error", err)
	}
}

// systemdUnit renders the user unit. TimeoutStopSec covers the background
// drain so systemd does not kill a shutdown in progress.
func systemdUnit(execPath, home, configPath string, stopTimeout time.Duration) string {
	execStart := execPath + " server start --foreground"
	if configPath != "" {
		execStart += " --config " + configPath
	}
	return fmt.Sprintf(`[Unit]
Description=chetter PR ref tracker
After=network-online.target

[Service]
Type=simple
ExecStart=%s
Restart=on-failure
RestartSec=5s
TimeoutStopSec=%d
Environment=HOME=%s

[Install]
WantedBy=default.target
`, execStart, int((stopTimeout + 30*time.Second).Seconds()), home)
}

// InstallSystemdService writes a systemd user unit file and enables the service.
func InstallSystemdService(cfg *config.Config, configPath string) error {
	home, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("getting home dir: %w", err)
	}

	unitDir := filepath.Join(home, ".config", "systemd", "user")
	if err := os.MkdirAll(unitDir, 0o755); err != nil {
		return fmt.Errorf("creating systemd directory: %w", err)
	}

	execPath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("finding executable path: %w", err)
	}

	unit := systemdUnit(execPath, home, configPath, cfg.Server.ParseShutdownTimeout())
	unitPath := filepath.Join(unitDir, "chetter.service")
	if err := os.WriteFile(unitPath, []byte(unit), 0o644); err != nil {
		return fmt.Errorf("writing unit file: %w", err)
	}

	reloadCmd := exec.Command("systemctl", "--user", "daemon-reload")
	if out, err := reloadCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("daemon-reload: %s: %w", string(out), err)
	}

	enableCmd := exec.Command("systemctl", "--user", "enable", "chetter")
	if out, err := enableCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("enabling service: %s: %w", string(out), err)
	}

	fmt.Printf("installed chetter.service at %s\n", unitPath)
	fmt.Println("service enabled, start with: systemctl --user start chetter")
	return nil
}
