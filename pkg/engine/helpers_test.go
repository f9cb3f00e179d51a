package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/classify"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/mailbox"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/repository"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

type memoryArchive struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (a *memoryArchive) PutSnapshot(ctx context.Context, agentId, logId string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.objects[agentId+"/"+logId] = data
	return nil
}

type failingClient struct{}

func (failingClient) Name() string { return "openai" }

func (failingClient) Classify(ctx context.Context, req classify.Request) (*classify.Decision, error) {
	return nil, &types.ProviderError{Provider: "openai", Op: "chat.completions", Kind: types.KindPermanent, StatusCode: 401, Message: "bad key"}
}

// blockingMailbox never answers until the caller gives up
type blockingMailbox struct{}

func (blockingMailbox) ListMessages(ctx context.Context, userId, query string, max int) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingMailbox) GetMessage(ctx context.Context, userId, messageId string) (*types.Item, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingMailbox) ListLabels(ctx context.Context, userId string) ([]mailbox.Label, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingMailbox) CreateLabel(ctx context.Context, userId, name string) (*mailbox.Label, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (blockingMailbox) ModifyLabels(ctx context.Context, userId, messageId string, add, remove []string) ([]string, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type brokenLogs struct {
	repository.ExecutionLogRepository
}

func (brokenLogs) CreateExecutionLog(ctx context.Context, log *types.ExecutionLog) error {
	return errors.New("database unavailable")
}
