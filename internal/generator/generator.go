// Package generator bridges to the external podcast generation pipeline.
package generator

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
)

var ErrNoOutput = errors.New("generation command produced no output path")

// CommandGenerator runs a configured external command to generate the
// podcast audio for a URL. The source URL is appended as the final argument
// and the command must print the path of the produced audio file as the
// last non-empty line of stdout.
//
// Example: GENERATE_COMMAND="python3 -m podcastfy.generate --tts openai"
type CommandGenerator struct {
	command string
	env     []string // extra KEY=VALUE entries, e.g. API keys
	log     *slog.Logger
}

func NewCommandGenerator(command string, env []string, log *slog.Logger) (*CommandGenerator, error) {
	if strings.TrimSpace(command) == "" {
		return nil, errors.New("generation command is empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &CommandGenerator{command: command, env: env, log: log}, nil
}

func (g *CommandGenerator) Generate(ctx context.Context, url string) (string, error) {
	parts := strings.Fields(g.command)
	args := append(parts[1:], url)

	cmd := exec.CommandContext(ctx, parts[0], args...)
	cmd.Env = append(os.Environ(), g.env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	g.log.Info("running generation command", "command", parts[0], "url", url)
	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail == "" {
			return "", fmt.Errorf("generation command: %w", err)
		}
		return "", fmt.Errorf("generation command: %w: %s", err, lastLine(detail))
	}

	path := lastLine(stdout.String())
	if path == "" {
		return "", ErrNoOutput
	}
	return path, nil
}

func lastLine(s string) string {
	var last string
	for _, line := range strings.Split(s, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			last = trimmed
		}
	}
	return last
}
