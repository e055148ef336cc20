package worker

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/msageha/tradedesk/internal/logger"
	"github.com/msageha/tradedesk/internal/model"
)

// validName permits only alphanumeric, underscore, and hyphen characters.
var validName = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxStderr bounds how much of a failing command's stderr is kept.
const maxStderr = 4096

// CommandWorker runs an external agent CLI. The rendered task prompt is
// written to stdin and stdout becomes the artifact.
type CommandWorker struct {
	profile model.Profile
	bin     string
	args    []string
}

func NewCommandWorker(p model.Profile) (*CommandWorker, error) {
	if !validName.MatchString(p.Name) {
		return nil, errors.Errorf("invalid worker name %q: must be alphanumeric, underscore, or hyphen", p.Name)
	}
	fields := strings.Fields(p.Command)
	if len(fields) == 0 {
		return nil, errors.Errorf("worker %s has no command", p.Name)
	}
	return &CommandWorker{profile: p, bin: fields[0], args: fields[1:]}, nil
}

func (w *CommandWorker) Name() string { return w.profile.Name }

func (w *CommandWorker) Run(ctx context.Context, in Input) (string, error) {
	args := append(append([]string(nil), w.args...), buildArgs(w.profile)...)
	cmd := exec.CommandContext(ctx, w.bin, args...)
	// Clear CLAUDECODE so the agent CLI can start inside a parent agent session.
	cmd.Env = append(filterEnv(os.Environ(), "CLAUDECODE"),
		"TRADEDESK_SESSION="+in.SessionID,
		"TRADEDESK_TASK="+in.TaskID,
		"TRADEDESK_SUBJECT="+in.Subject,
		"TRADEDESK_WORKER="+w.profile.Name,
	)
	cmd.Stdin = strings.NewReader(RenderPrompt(in))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log := logger.G(ctx).WithField("worker", w.profile.Name).WithField("task", in.TaskID)
	log.WithField("command", w.bin).Debug("starting agent command")

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", errors.Wrapf(ctx.Err(), "%s interrupted", w.bin)
		}
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > maxStderr {
			msg = msg[:maxStderr]
		}
		return "", errors.Wrapf(err, "%s failed: %s", w.bin, msg)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		return "", errors.Errorf("%s produced no output", w.bin)
	}
	log.WithField("bytes", len(out)).Debug("agent command finished")
	return out + "\n", nil
}

// buildArgs constructs the agent CLI flags from a profile.
func buildArgs(p model.Profile) []string {
	args := []string{
		"--print",
		"--model", string(p.ModelTier),
		"--max-turns", fmt.Sprint(p.MaxTurns),
	}
	if p.SystemPrompt != "" {
		args = append(args, "--append-system-prompt", p.SystemPrompt)
	}
	if len(p.AllowedNativeOperations) > 0 {
		args = append(args, "--allowedTools", strings.Join(p.AllowedNativeOperations, ","))
	}
	if len(p.DeniedOperations) > 0 {
		args = append(args, "--disallowedTools", strings.Join(p.DeniedOperations, ","))
	}
	return args
}

// RenderPrompt is the task description handed to an external agent.
func RenderPrompt(in Input) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Session: %s\nTask: %s\nSubject: %s\nPhase: %s\n",
		in.SessionID, in.TaskID, in.Subject, in.Phase)
	if in.Request != "" {
		fmt.Fprintf(&sb, "Request: %s\n", in.Request)
	}
	if len(in.Profile.AllowedDataSources) > 0 {
		fmt.Fprintf(&sb, "Data sources: %s\n", strings.Join(in.Profile.AllowedDataSources, ", "))
	}

	names := make([]string, 0, len(in.Upstream))
	for n := range in.Upstream {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(&sb, "\n---\n\n## Input from %s\n\n%s\n", n, strings.TrimSpace(in.Upstream[n]))
	}
	if len(in.Missing) > 0 {
		sb.WriteString("\n---\n\n## Missing inputs\n\n")
		for _, m := range in.Missing {
			fmt.Fprintf(&sb, "- %s: %s\n", m.Worker, m.Note)
		}
	}
	sb.WriteString("\nWrite your report as markdown on stdout.\n")
	return sb.String()
}

// filterEnv returns a copy of environ with the named variable removed.
func filterEnv(environ []string, name string) []string {
	prefix := name + "="
	out := make([]string, 0, len(environ))
	for _, e := range environ {
		if !strings.HasPrefix(e, prefix) {
			out = append(out, e)
		}
	}
	return out
}
