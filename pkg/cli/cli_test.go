package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validYAML = `
id: f1
name: triage
nodes:
  - id: t1
    type: trigger
    data:
      config:
        maxItems: 20
        filterCriteria:
          unreadOnly: true
  - id: c1
    type: classifier
    data:
      config:
        categories: [Important, Spam]
  - id: a1
    type: action
    data:
      config:
        actionType: archive
        category: Spam
edges:
  - {id: e1, source: t1, target: c1}
  - {id: e2, source: c1, target: a1, condition: Spam}
`

const invalidJSON = `{"id": "f2", "nodes": [
	{"id": "c1", "type": "classifier", "data": {"config": {"categories": ["A", "a"]}}},
	{"id": "a1", "type": "action", "data": {"config": {"actionType": "move"}}}
], "edges": [{"id": "e1", "source": "c1", "target": "missing"}]}`

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Cleanup(func() { jsonOutput = false })

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestValidateAcceptsYAMLFlow(t *testing.T) {
	out, err := runCLI(t, "validate", writeFile(t, "flow.yaml", validYAML))
	require.NoError(t, err)
	assert.Contains(t, out, `flow "triage" is valid (3 nodes, 2 edges)`)
	assert.Contains(t, out, "in:inbox is:unread")
	assert.Contains(t, out, "archive on Spam")
	assert.Contains(t, out, "entry node: t1")
}

func TestValidateReportsEveryViolation(t *testing.T) {
	out, err := runCLI(t, "validate", writeFile(t, "flow.json", invalidJSON))
	require.ErrorIs(t, err, ErrInvalidFlow)
	assert.Contains(t, out, "flow has no trigger node")
	assert.Contains(t, out, `action "a1": move requires a destination`)
	assert.Contains(t, out, `edge "e1": unknown target "missing"`)
}

func TestValidateJSONOutput(t *testing.T) {
	out, err := runCLI(t, "validate", "--json", writeFile(t, "flow.json", invalidJSON))
	require.ErrorIs(t, err, ErrInvalidFlow)

	var result validateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.False(t, result.Valid)
	assert.NotEmpty(t, result.Violations)
	assert.Equal(t, 2, result.Nodes)
}

func TestValidateMissingFile(t *testing.T) {
	_, err := runCLI(t, "validate", filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestTableAlignsColumns(t *testing.T) {
	table := NewTable("NODE", "TYPE")
	table.AddRow("t1", "trigger")
	table.AddRow("classifier-1", "classifier", "dropped")

	var out bytes.Buffer
	table.Print(&out)

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], "NODE")
	assert.Contains(t, lines[1], strings.Repeat("─", len("classifier-1")))
	assert.Equal(t, strings.Index(lines[2], "trigger"), strings.Index(lines[3], "classifier "))
	assert.NotContains(t, out.String(), "dropped")
}

func TestEmptyTablePrintsNothing(t *testing.T) {
	var out bytes.Buffer
	NewTable("NODE").Print(&out)
	assert.Empty(t, out.String())
}
