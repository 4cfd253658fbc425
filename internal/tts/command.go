package tts

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// Command runs an external program to synthesize speech. The configured
// template may use the placeholders {{text}}, {{voice}} and {{output}}, which
// are substituted per invocation. The program must create the output file
// itself.
type Command struct {
	template []string
	logger   *slog.Logger
}

// NewCommand creates a command-template engine.
func NewCommand(template []string, logger *slog.Logger) *Command {
	return &Command{
		template: append([]string(nil), template...),
		logger:   logger,
	}
}

// Synthesize expands the template and runs it.
func (c *Command) Synthesize(ctx context.Context, text, voice, outPath string) error {
	args := make([]string, len(c.template))
	replacer := strings.NewReplacer(
		"{{text}}", text,
		"{{voice}}", voice,
		"{{output}}", outPath,
	)
	for i, a := range c.template {
		args[i] = replacer.Replace(a)
	}

	c.logger.Debug("running tts command", slog.String("program", args[0]))

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		tail := string(output)
		if len(tail) > 1024 {
			tail = tail[len(tail)-1024:]
		}
		return fmt.Errorf("tts command failed: %w: %s", err, tail)
	}
	return nil
}
