package detector

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"
)

const scriptName = "mediapipe_service.py"

// service is one running MediaPipe process. Frames go in length-prefixed on
// stdin and each produces one JSON line on stdout.
type service struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
}

func startService(cfg Config, log *zap.Logger) (*service, error) {
	script := locateScript(cfg.Script)
	if script == "" {
		return nil, fmt.Errorf("%s not found", scriptName)
	}
	python := cfg.Python
	if python == "" {
		python = locatePython()
	}

	maxHands := cfg.MaxHands
	if maxHands <= 0 {
		maxHands = DefaultConfig().MaxHands
	}
	cmd := exec.Command(python, script,
		"--max-hands", strconv.Itoa(maxHands),
		"--min-confidence", strconv.FormatFloat(cfg.MinConfidence, 'f', -1, 64),
	)
	cmd.Dir = filepath.Dir(script)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", script, err)
	}

	go func() {
		sc := bufio.NewScanner(stderr)
		for sc.Scan() {
			log.Debug("service stderr", zap.String("line", sc.Text()))
		}
	}()

	log.Info("mediapipe service started",
		zap.String("script", script),
		zap.String("python", python),
		zap.Int("pid", cmd.Process.Pid),
	)
	return &service{cmd: cmd, stdin: stdin, stdout: bufio.NewReader(stdout)}, nil
}

// exchange sends one encoded frame and returns the service's reply line.
func (s *service) exchange(frame []byte) ([]byte, error) {
	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(frame)))
	if _, err := s.stdin.Write(header[:]); err != nil {
		return nil, fmt.Errorf("write frame header: %w", err)
	}
	if _, err := s.stdin.Write(frame); err != nil {
		return nil, fmt.Errorf("write frame: %w", err)
	}

	line, err := s.stdout.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("read reply: %w", err)
	}
	return line, nil
}

// stop closes stdin, which the service treats as end of input, and waits
// for it to exit. kill stops it without waiting for a clean exit.
func (s *service) stop(kill bool) error {
	if kill && s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	s.stdin.Close()
	return s.cmd.Wait()
}

// locateScript returns the configured script, or the first service script
// found next to the working directory, the binary or under ~/.handscene.
func locateScript(configured string) string {
	if configured != "" {
		return firstExisting(configured)
	}
	exeDir := executableDir()
	return firstExisting(
		filepath.Join("scripts", scriptName),
		filepath.Join("..", "scripts", scriptName),
		filepath.Join(exeDir, "scripts", scriptName),
		filepath.Join(homeDir(), ".handscene", "scripts", scriptName),
	)
}

// locatePython prefers a virtualenv interpreter and falls back to python3
// on PATH.
func locatePython() string {
	exeDir := executableDir()
	if p := firstExisting(
		filepath.Join("venv", "bin", "python"),
		filepath.Join("..", "venv", "bin", "python"),
		filepath.Join(exeDir, "venv", "bin", "python"),
		filepath.Join(homeDir(), ".handscene", "venv", "bin", "python"),
	); p != "" {
		return p
	}
	return "python3"
}

func executableDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

func firstExisting(paths ...string) string {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if abs, err := filepath.Abs(p); err == nil {
			return abs
		}
		return p
	}
	return ""
}
