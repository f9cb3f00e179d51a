package engine

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/classify"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/mailbox"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/retry"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testUser  = "user-1"
	testAgent = "agent-1"
)

type testEnv struct {
	engine  *Engine
	backend *repository.MemoryBackend
	gmail   *mailbox.FakeServer
	archive *memoryArchive
}

func newTestEnv(t *testing.T, cfg types.EngineConfig, classifiers Classifiers) *testEnv {
	gmail := mailbox.NewFakeServer("")
	t.Cleanup(gmail.Close)

	if classifiers == nil {
		classifiers = classify.NewRouter(types.ClassificationConfig{Offline: true}, nil, retry.DefaultPolicy())
	}

	backend := repository.NewMemoryBackend()
	archive := &memoryArchive{objects: map[string][]byte{}}
	client := mailbox.NewClient(gmail.MailboxConfig(), mailbox.NewStaticTokens("tok"), testPolicy())

	return &testEnv{
		engine: New(cfg, Dependencies{
			Agents:      backend,
			Logs:        backend,
			Mailbox:     client,
			Classifiers: classifiers,
			Archive:     archive,
		}),
		backend: backend,
		gmail:   gmail,
		archive: archive,
	}
}

func testPolicy() retry.Policy {
	return retry.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func (e *testEnv) saveFlow(t *testing.T, f types.Flow) {
	require.NoError(t, e.backend.SaveAgent(context.Background(), &types.Agent{
		Id: testAgent, UserId: testUser, Name: "triage", Flow: f, Active: true,
	}))
}

func (e *testEnv) seedTriageInbox() {
	inbox := []string{mailbox.LabelInbox}
	e.gmail.AddMessage(mailbox.FakeMessage{Id: "m1", From: "boss@corp.example", Subject: "URGENT: deadline tomorrow", Body: "please reply asap", Labels: inbox})
	e.gmail.AddMessage(mailbox.FakeMessage{Id: "m2", From: "promo@lucky.example", Subject: "Congratulations!", Body: "You are our lottery winner, claim your prize", Labels: inbox})
	e.gmail.AddMessage(mailbox.FakeMessage{Id: "m3", From: "legal@corp.example", Subject: "Action required: sign the contract", Labels: inbox})
	e.gmail.AddMessage(mailbox.FakeMessage{Id: "m4", From: "pat@home.example", Subject: "Lunch on Friday?", Body: "want to grab food", Labels: inbox})
	e.gmail.AddMessage(mailbox.FakeMessage{Id: "m5", From: "hr@corp.example", Subject: "Team offsite photos", Body: "here are the pictures", Labels: inbox})
}

func triageFlow() types.Flow {
	return types.Flow{
		Id:   "flow-1",
		Name: "triage",
		Nodes: []types.Node{
			types.NewNode("t1", types.NodeTypeTrigger, "Inbox", map[string]any{"maxItems": 10}),
			types.NewNode("c1", types.NodeTypeClassifier, "Sort", map[string]any{
				"provider":   "openai",
				"categories": []string{"Important", "Spam"},
			}),
			types.NewNode("a-label", types.NodeTypeAction, "Label important", map[string]any{
				"actionType": "label",
				"category":   "Important",
			}),
			types.NewNode("a-archive", types.NodeTypeAction, "Archive spam", map[string]any{
				"actionType": "archive",
				"category":   "Spam",
			}),
		},
		Edges: []types.Edge{
			{Id: "e1", Source: "t1", Target: "c1"},
			{Id: "e2", Source: "c1", Target: "a-label", Condition: "Important"},
			{Id: "e3", Source: "c1", Target: "a-archive", Condition: "Spam"},
		},
	}
}

func countLabel(labels []string, id string) int {
	n := 0
	for _, l := range labels {
		if l == id {
			n++
		}
	}
	return n
}

func TestExecuteFlowTriagesInbox(t *testing.T) {
	env := newTestEnv(t, types.EngineConfig{}, nil)
	env.seedTriageInbox()
	env.saveFlow(t, triageFlow())

	result, err := env.engine.ExecuteFlow(context.Background(), testAgent, testUser, types.TriggeredByManual)
	require.NoError(t, err)
	require.Equal(t, types.ExecutionSuccess, result.Status, result.Error)

	assert.Equal(t, 5, result.Summary.TotalItems)
	assert.Equal(t, map[types.ActionType]int{types.ActionLabel: 2, types.ActionArchive: 1}, result.Summary.ByAction)
	assert.Zero(t, result.Summary.FailedActions)
	assert.Equal(t, []string{"t1", "c1", "a-label", "a-archive"}, result.Context.Visited)

	for _, item := range result.Context.Items {
		r, ok := result.Context.Classifications[item.Id]
		require.True(t, ok, item.Id)
		assert.Contains(t, []string{"Important", "Spam"}, r.Category)
	}
	assert.True(t, result.Context.Classifications["m4"].Fallback)

	importantId := env.gmail.LabelId("Important")
	require.NotEmpty(t, importantId)
	assert.Contains(t, env.gmail.MessageLabels("m1"), importantId)
	assert.Contains(t, env.gmail.MessageLabels("m3"), importantId)
	assert.NotContains(t, env.gmail.MessageLabels("m4"), importantId)
	assert.NotContains(t, env.gmail.MessageLabels("m2"), mailbox.LabelInbox)
	assert.Contains(t, env.gmail.MessageLabels("m5"), mailbox.LabelInbox)

	// local label sets track the mutations
	assert.Contains(t, result.Context.Item("m1").Labels, importantId)
	assert.NotContains(t, result.Context.Item("m2").Labels, mailbox.LabelInbox)

	entry, err := env.backend.GetExecutionLog(context.Background(), result.LogId)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionSuccess, entry.Status)
	assert.Equal(t, types.TriggeredByManual, entry.TriggeredBy)
	require.NotNil(t, entry.EndTime)

	var snapshot types.ExecutionSnapshot
	require.NoError(t, json.Unmarshal(entry.Details, &snapshot))
	assert.Equal(t, 2, snapshot.Summary.ByAction[types.ActionLabel])
	assert.Len(t, snapshot.Context.Actions, 3)

	assert.Contains(t, env.archive.objects, testAgent+"/"+result.LogId)
}

func TestExecuteFlowIsIdempotent(t *testing.T) {
	env := newTestEnv(t, types.EngineConfig{}, nil)
	env.seedTriageInbox()
	env.saveFlow(t, triageFlow())
	ctx := context.Background()

	_, err := env.engine.ExecuteFlow(ctx, testAgent, testUser, types.TriggeredByManual)
	require.NoError(t, err)
	modifies := env.gmail.CallCount("modify")

	result, err := env.engine.ExecuteFlow(ctx, testAgent, testUser, types.TriggeredBySchedule)
	require.NoError(t, err)
	require.Equal(t, types.ExecutionSuccess, result.Status)

	// the archived message is no longer in the inbox
	assert.Equal(t, 4, result.Summary.TotalItems)
	assert.Equal(t, 2, result.Summary.ByAction[types.ActionLabel])
	assert.Zero(t, result.Summary.ByAction[types.ActionArchive])
	assert.NotContains(t, result.Context.Visited, "a-archive")

	assert.Equal(t, modifies, env.gmail.CallCount("modify"))
	assert.Equal(t, 1, env.gmail.CallCount("labels.create"))

	importantId := env.gmail.LabelId("Important")
	assert.Equal(t, 1, countLabel(env.gmail.MessageLabels("m1"), importantId))
	for _, a := range result.Context.Actions {
		assert.Equal(t, "label already applied", a.Message)
	}
}

func TestExecuteFlowCountsSharedActionOnce(t *testing.T) {
	env := newTestEnv(t, types.EngineConfig{}, nil)
	env.seedTriageInbox()

	f := triageFlow()
	f.Nodes = append(f.Nodes, types.NewNode("c2", types.NodeTypeClassifier, "Second opinion", map[string]any{
		"provider":   "openai",
		"categories": []string{"Important", "Spam"},
	}))
	f.Edges = append(f.Edges,
		types.Edge{Id: "e4", Source: "t1", Target: "c2"},
		types.Edge{Id: "e5", Source: "c2", Target: "a-label", Condition: "Important"},
	)
	env.saveFlow(t, f)

	result, err := env.engine.ExecuteFlow(context.Background(), testAgent, testUser, types.TriggeredByManual)
	require.NoError(t, err)
	require.Equal(t, types.ExecutionSuccess, result.Status, result.Error)

	assert.Equal(t, map[types.ActionType]int{types.ActionLabel: 2, types.ActionArchive: 1}, result.Summary.ByAction)
	assert.Len(t, result.Context.Actions, 3)
	assert.Equal(t, []string{"t1", "c1", "a-label", "a-archive", "c2"}, result.Context.Visited)
}

func TestExecuteFlowEmptyBatch(t *testing.T) {
	env := newTestEnv(t, types.EngineConfig{}, nil)
	env.saveFlow(t, triageFlow())

	result, err := env.engine.ExecuteFlow(context.Background(), testAgent, testUser, types.TriggeredByAPI)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionSuccess, result.Status)
	assert.Empty(t, result.Context.Items)
	assert.Empty(t, result.Context.Actions)
	assert.Zero(t, env.gmail.CallCount("labels.list"))
}

func TestExecuteFlowRejectsTwoTriggers(t *testing.T) {
	env := newTestEnv(t, types.EngineConfig{}, nil)
	env.seedTriageInbox()

	f := triageFlow()
	f.Nodes = append(f.Nodes, types.NewNode("t2", types.NodeTypeTrigger, "Second", nil))
	env.saveFlow(t, f)

	result, err := env.engine.ExecuteFlow(context.Background(), testAgent, testUser, types.TriggeredByManual)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, result.Status)
	assert.Contains(t, result.Error, "flow has 2 trigger nodes (t1, t2), exactly one is required")
	assert.Zero(t, env.gmail.CallCount("list"))

	entry, err := env.backend.GetExecutionLog(context.Background(), result.LogId)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, entry.Status)
	assert.Equal(t, result.Error, entry.ErrorMessage)
}

func TestExecuteFlowRequiresOwner(t *testing.T) {
	env := newTestEnv(t, types.EngineConfig{}, nil)
	env.saveFlow(t, triageFlow())

	result, err := env.engine.ExecuteFlow(context.Background(), testAgent, "someone-else", types.TriggeredByAPI)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, result.Status)
	assert.Contains(t, result.Error, "agent not found")

	result, err = env.engine.ExecuteFlow(context.Background(), "missing", testUser, types.TriggeredByAPI)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, result.Status)
}

func TestExecuteFlowTriggerFailureIsFatal(t *testing.T) {
	env := newTestEnv(t, types.EngineConfig{}, nil)
	env.seedTriageInbox()
	env.saveFlow(t, triageFlow())
	env.gmail.FailNext("list", http.StatusBadRequest)

	result, err := env.engine.ExecuteFlow(context.Background(), testAgent, testUser, types.TriggeredByManual)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, result.Status)
	assert.Contains(t, result.Error, "list messages")
	assert.Equal(t, []string{}, result.Context.Visited)
}

func TestExecuteFlowSkipsVanishedMessages(t *testing.T) {
	env := newTestEnv(t, types.EngineConfig{FetchWorkers: 1}, nil)
	env.seedTriageInbox()
	env.saveFlow(t, triageFlow())
	env.gmail.FailNext("get", http.StatusNotFound)

	result, err := env.engine.ExecuteFlow(context.Background(), testAgent, testUser, types.TriggeredByManual)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionSuccess, result.Status)
	assert.Equal(t, 4, result.Summary.TotalItems)
	assert.Nil(t, result.Context.Item("m1"))
}

func TestExecuteFlowRecordsProviderFailures(t *testing.T) {
	env := newTestEnv(t, types.EngineConfig{}, classify.NewRouterWithClient(failingClient{}))
	env.seedTriageInbox()
	env.saveFlow(t, triageFlow())

	result, err := env.engine.ExecuteFlow(context.Background(), testAgent, testUser, types.TriggeredByManual)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionSuccess, result.Status)
	assert.Len(t, result.Context.ClassificationIssues, 5)
	assert.Equal(t, "m1", result.Context.ClassificationIssues[0].ItemId)
	assert.Equal(t, "c1", result.Context.ClassificationIssues[0].NodeId)
	assert.Equal(t, map[types.ActionType]int{types.ActionLabel: 2, types.ActionArchive: 1}, result.Summary.ByAction)
}

func TestExecuteFlowTimeout(t *testing.T) {
	backend := repository.NewMemoryBackend()
	e := New(types.EngineConfig{RunTimeout: 50 * time.Millisecond}, Dependencies{
		Agents:      backend,
		Logs:        backend,
		Mailbox:     blockingMailbox{},
		Classifiers: classify.NewRouter(types.ClassificationConfig{Offline: true}, nil, testPolicy()),
	})
	require.NoError(t, backend.SaveAgent(context.Background(), &types.Agent{Id: testAgent, UserId: testUser, Flow: triageFlow()}))

	result, err := e.ExecuteFlow(context.Background(), testAgent, testUser, types.TriggeredBySchedule)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, result.Status)
	assert.Contains(t, result.Error, "timed out")

	entry, err := backend.GetExecutionLog(context.Background(), result.LogId)
	require.NoError(t, err)
	assert.Equal(t, types.ExecutionFailed, entry.Status)
	assert.NotNil(t, entry.EndTime)
}

func TestExecuteFlowFailsWhenLogCannotBeCreated(t *testing.T) {
	backend := repository.NewMemoryBackend()
	e := New(types.EngineConfig{}, Dependencies{
		Agents:      backend,
		Logs:        brokenLogs{backend},
		Mailbox:     blockingMailbox{},
		Classifiers: classify.NewRouter(types.ClassificationConfig{Offline: true}, nil, testPolicy()),
	})

	result, err := e.ExecuteFlow(context.Background(), testAgent, testUser, types.TriggeredByManual)
	assert.Error(t, err)
	assert.Nil(t, result)
}
