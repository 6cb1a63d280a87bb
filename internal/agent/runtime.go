package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/promptforge/enhance-gateway/internal/config"
)

// TurnRequest describes one turn: a new thread when ThreadID is empty, a
// resumed one otherwise.
type TurnRequest struct {
	ThreadID string
	Prompt   string
	Options  ThreadOptions
}

// EventStream yields upstream events in order. Next returns io.EOF once the
// turn's stream is exhausted. Close tears the stream down; it is safe to call
// after EOF and concurrently with a pending Next.
type EventStream interface {
	Next() (*Event, error)
	Close() error
}

// Runtime starts turns against the upstream agent.
type Runtime interface {
	RunTurn(ctx context.Context, req TurnRequest) (EventStream, error)
}

// CLIRuntime drives the agent CLI as a subprocess per turn. The CLI emits one
// JSON event per stdout line; cancelling the context kills the process, which
// is how client disconnects stop upstream work.
type CLIRuntime struct {
	cfg    func() *config.Config
	logger *slog.Logger
}

func NewCLIRuntime(cfg func() *config.Config, logger *slog.Logger) *CLIRuntime {
	return &CLIRuntime{cfg: cfg, logger: logger}
}

func buildArgs(req TurnRequest, extra []string) []string {
	args := []string{"exec", "--json"}
	if req.ThreadID != "" {
		args = append(args, "resume", req.ThreadID)
	}
	o := req.Options
	if o.Model != "" {
		args = append(args, "--model", o.Model)
	}
	if o.SandboxMode != "" {
		args = append(args, "--sandbox", o.SandboxMode)
	}
	if o.WorkingDirectory != "" {
		args = append(args, "--cd", o.WorkingDirectory)
	}
	if o.SkipGitRepoCheck {
		args = append(args, "--skip-git-repo-check")
	}
	if o.ReasoningEffort != "" {
		args = append(args, "-c", "model_reasoning_effort="+o.ReasoningEffort)
	}
	if o.ReasoningSummary != "" {
		args = append(args, "-c", "model_reasoning_summary="+o.ReasoningSummary)
	}
	if o.ApprovalPolicy != "" {
		args = append(args, "-c", "approval_policy="+o.ApprovalPolicy)
	}
	if o.WebSearchEnabled {
		args = append(args, "-c", "tools.web_search=true")
	}
	args = append(args, extra...)
	// "-" makes the CLI read the prompt from stdin.
	return append(args, "-")
}

func (r *CLIRuntime) RunTurn(ctx context.Context, req TurnRequest) (EventStream, error) {
	cfg := r.cfg()

	cmd := exec.CommandContext(ctx, cfg.Agent.Binary, buildArgs(req, cfg.Agent.ExtraArgs)...)
	cmd.Stdin = strings.NewReader(req.Prompt)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("open agent stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start agent process: %w", err)
	}

	r.logger.Debug("agent turn started",
		"binary", cfg.Agent.Binary,
		"thread_id", req.ThreadID,
		"model", req.Options.Model,
	)

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	return &cliStream{
		cmd:     cmd,
		scanner: scanner,
		stderr:  &stderr,
		logger:  r.logger,
	}, nil
}

type cliStream struct {
	cmd     *exec.Cmd
	scanner *bufio.Scanner
	stderr  *bytes.Buffer
	logger  *slog.Logger

	waitOnce sync.Once
	waitErr  error
}

func (s *cliStream) wait() error {
	s.waitOnce.Do(func() {
		s.waitErr = s.cmd.Wait()
	})
	return s.waitErr
}

func (s *cliStream) Next() (*Event, error) {
	for s.scanner.Scan() {
		line := bytes.TrimSpace(s.scanner.Bytes())
		if len(line) == 0 || line[0] != '{' {
			continue
		}
		var ev Event
		if err := json.Unmarshal(line, &ev); err != nil {
			s.logger.Debug("dropping undecodable agent line", "error", err)
			continue
		}
		if !knownEventTypes[ev.Type] {
			continue
		}
		return &ev, nil
	}

	if err := s.scanner.Err(); err != nil {
		s.wait()
		return nil, fmt.Errorf("read agent stream: %w", err)
	}
	if err := s.wait(); err != nil {
		msg := strings.TrimSpace(s.stderr.String())
		if msg != "" {
			return nil, fmt.Errorf("agent process failed: %s: %w", msg, err)
		}
		return nil, fmt.Errorf("agent process failed: %w", err)
	}
	return nil, io.EOF
}

func (s *cliStream) Close() error {
	if s.cmd.Process != nil {
		// Idempotent; the context cancel path may already have killed it.
		_ = s.cmd.Process.Kill()
	}
	s.wait()
	return nil
}
