package worker

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msageha/tradedesk/internal/model"
)

func writeScript(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent.sh")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	return path
}

func commandProfile(command string) model.Profile {
	return model.Profile{
		Name:                    "external-analyst",
		ModelTier:               model.ModelHaiku,
		MaxTurns:                3,
		Runner:                  model.RunnerCommand,
		Command:                 command,
		AllowedNativeOperations: []string{"read_reports"},
		DeniedOperations:        []string{"place_order"},
	}
}

func TestBuildArgs(t *testing.T) {
	p := commandProfile("agent")
	p.SystemPrompt = "Be brief."
	assert.Equal(t, []string{
		"--print",
		"--model", "haiku",
		"--max-turns", "3",
		"--append-system-prompt", "Be brief.",
		"--allowedTools", "read_reports",
		"--disallowedTools", "place_order",
	}, buildArgs(p))
}

func TestNewCommandWorker_Invalid(t *testing.T) {
	_, err := NewCommandWorker(commandProfile(""))
	assert.Error(t, err)

	p := commandProfile("agent")
	p.Name = "bad name"
	_, err = NewCommandWorker(p)
	assert.Error(t, err)
}

func TestCommandWorker_Run(t *testing.T) {
	script := writeScript(t, `echo "args: $*"
echo "subject: $TRADEDESK_SUBJECT"
cat
`)
	w, err := NewCommandWorker(commandProfile(script + " --verbose"))
	require.NoError(t, err)
	assert.Equal(t, "external-analyst", w.Name())

	out, err := w.Run(context.Background(), Input{
		SessionID: "sess_1",
		TaskID:    "task_1",
		Subject:   "ETH",
		Phase:     model.PhaseAssess,
		Upstream:  map[string]string{model.WorkerMarketMonitor: "price report"},
		Missing:   []MissingNote{{Worker: model.WorkerNewsSentiment, Note: "timeout — proceeding without sentiment data"}},
	})
	require.NoError(t, err)
	assert.Contains(t, out, "args: --verbose --print --model haiku --max-turns 3")
	assert.Contains(t, out, "subject: ETH")
	assert.Contains(t, out, "Phase: assess-risk")
	assert.Contains(t, out, "## Input from market-monitor")
	assert.Contains(t, out, "- news-sentiment: timeout — proceeding without sentiment data")
}

func TestCommandWorker_Failure(t *testing.T) {
	script := writeScript(t, "echo oops >&2\nexit 3\n")
	w, err := NewCommandWorker(commandProfile(script))
	require.NoError(t, err)

	_, err = w.Run(context.Background(), Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "oops")
}

func TestCommandWorker_EmptyOutput(t *testing.T) {
	script := writeScript(t, "cat >/dev/null\n")
	w, err := NewCommandWorker(commandProfile(script))
	require.NoError(t, err)

	_, err = w.Run(context.Background(), Input{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "produced no output")
}

func TestFilterEnv(t *testing.T) {
	out := filterEnv([]string{"A=1", "CLAUDECODE=1", "CLAUDECODE_X=2"}, "CLAUDECODE")
	assert.Equal(t, []string{"A=1", "CLAUDECODE_X=2"}, out)
}
