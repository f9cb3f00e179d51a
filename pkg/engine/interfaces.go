package engine

import (
	"context"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/classify"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/mailbox"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
)

// Mailbox is the provider surface the executors depend on
type Mailbox interface {
	ListMessages(ctx context.Context, userId, query string, max int) ([]string, error)
	GetMessage(ctx context.Context, userId, messageId string) (*types.Item, error)
	ListLabels(ctx context.Context, userId string) ([]mailbox.Label, error)
	CreateLabel(ctx context.Context, userId, name string) (*mailbox.Label, error)
	ModifyLabels(ctx context.Context, userId, messageId string, add, remove []string) ([]string, error)
}

// Classifiers resolves the client for a classifier node and the
// deterministic fallback
type Classifiers interface {
	For(provider string) classify.Client
	Fallback() classify.Client
}

// Archiver stores a copy of a finished run's snapshot
type Archiver interface {
	PutSnapshot(ctx context.Context, agentId, logId string, data []byte) error
}

var (
	_ Mailbox     = (*mailbox.Client)(nil)
	_ Classifiers = (*classify.Router)(nil)
)
