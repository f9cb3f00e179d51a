package engine

import (
	"context"
	"net/http"
	"testing"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/mailbox"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newActionFixture(t *testing.T) (*ActionExecutor, *mailbox.FakeServer, *types.ExecutionContext) {
	gmail := mailbox.NewFakeServer("")
	t.Cleanup(gmail.Close)

	inbox := []string{mailbox.LabelInbox}
	execCtx := types.NewExecutionContext(testAgent, testUser)
	for _, id := range []string{"m1", "m2", "m3"} {
		gmail.AddMessage(mailbox.FakeMessage{Id: id, Labels: inbox})
		execCtx.Items = append(execCtx.Items, types.Item{Id: id, Labels: inbox})
	}
	execCtx.Classifications["m1"] = types.ClassificationResult{Category: "Work", Confidence: 0.9}
	execCtx.Classifications["m2"] = types.ClassificationResult{Category: "work", Confidence: 0.8}
	execCtx.Classifications["m3"] = types.ClassificationResult{Category: "Work", Fallback: true}

	client := mailbox.NewClient(gmail.MailboxConfig(), mailbox.NewStaticTokens("tok"), testPolicy())
	return NewActionExecutor(client), gmail, execCtx
}

func actionNode(raw map[string]any) types.Node {
	return types.NewNode("a1", types.NodeTypeAction, "", raw)
}

func TestActionTargetsMatchingNonFallbackItems(t *testing.T) {
	exec, gmail, execCtx := newActionFixture(t)

	records := exec.Run(context.Background(), actionNode(map[string]any{"actionType": "archive", "category": "WORK"}), execCtx)
	require.Len(t, records, 2)
	assert.Equal(t, "m1", records[0].ItemId)
	assert.Equal(t, "m2", records[1].ItemId)
	assert.True(t, records[0].Success)
	assert.Equal(t, "a1", records[0].NodeId)
	assert.Contains(t, gmail.MessageLabels("m3"), mailbox.LabelInbox)

	// archiving again needs no provider call
	records = exec.Run(context.Background(), actionNode(map[string]any{"actionType": "archive", "category": "Work"}), execCtx)
	require.Len(t, records, 2)
	assert.Equal(t, "already archived", records[0].Message)
	assert.Equal(t, 2, gmail.CallCount("modify"))
}

func TestActionEmptyCategoryTargetsAllClassified(t *testing.T) {
	exec, _, execCtx := newActionFixture(t)

	records := exec.Run(context.Background(), actionNode(map[string]any{"actionType": "label", "labelName": "Seen"}), execCtx)
	assert.Len(t, records, 2)
}

func TestActionLabelUsesExistingLabelAfterConflict(t *testing.T) {
	exec, gmail, execCtx := newActionFixture(t)
	existing := gmail.AddLabel("work")

	records := exec.Run(context.Background(), actionNode(map[string]any{"actionType": "label", "category": "Work"}), execCtx)
	require.Len(t, records, 2)
	for _, r := range records {
		assert.True(t, r.Success, r.Message)
		assert.Equal(t, "Work", r.Label)
	}
	assert.Contains(t, gmail.MessageLabels("m1"), existing)
	assert.Equal(t, 1, gmail.CallCount("labels.create"))
	assert.Equal(t, 2, gmail.CallCount("labels.list"))
}

func TestActionLabelFailureIsRecordedPerItem(t *testing.T) {
	exec, gmail, execCtx := newActionFixture(t)
	gmail.FailNext("labels.list", http.StatusForbidden)

	records := exec.Run(context.Background(), actionNode(map[string]any{"actionType": "label", "category": "Work"}), execCtx)
	require.Len(t, records, 2)
	assert.False(t, records[0].Success)
	assert.Contains(t, records[0].Message, "label action failed for item m1")
	// the list is retried for the next item once the first attempt failed
	assert.True(t, records[1].Success, records[1].Message)
}

func TestActionMove(t *testing.T) {
	exec, gmail, execCtx := newActionFixture(t)
	projects := gmail.AddLabel("Projects")

	records := exec.Run(context.Background(), actionNode(map[string]any{"actionType": "move", "category": "Work", "destination": "Projects"}), execCtx)
	require.Len(t, records, 2)
	assert.True(t, records[0].Success)
	assert.Equal(t, []string{projects}, gmail.MessageLabels("m1"))
	assert.Equal(t, []string{projects}, execCtx.Item("m1").Labels)

	byId := exec.Run(context.Background(), actionNode(map[string]any{"actionType": "move", "category": "Work", "destination": projects}), execCtx)
	require.Len(t, byId, 2)
	assert.Equal(t, "already moved", byId[0].Message)
}

func TestActionMoveUnknownDestination(t *testing.T) {
	exec, gmail, execCtx := newActionFixture(t)

	records := exec.Run(context.Background(), actionNode(map[string]any{"actionType": "move", "category": "Work", "destination": "Nowhere"}), execCtx)
	require.Len(t, records, 2)
	assert.False(t, records[0].Success)
	assert.Contains(t, records[0].Message, `destination "Nowhere" not found`)
	assert.Zero(t, gmail.CallCount("labels.create"))
	assert.Zero(t, gmail.CallCount("modify"))
}
