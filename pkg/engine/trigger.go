package engine

import (
	"context"
	"fmt"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/mailbox"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultFetchWorkers = 6

// TriggerExecutor selects the batch of messages a run works on
type TriggerExecutor struct {
	mailbox Mailbox
	workers int
}

func NewTriggerExecutor(mb Mailbox, workers int) *TriggerExecutor {
	if workers <= 0 {
		workers = defaultFetchWorkers
	}
	return &TriggerExecutor{mailbox: mb, workers: workers}
}

// Run lists matching ids and fetches each message. Messages deleted between
// list and fetch are skipped; any other fetch error fails the node. The
// returned items keep list order.
func (t *TriggerExecutor) Run(ctx context.Context, userId string, cfg *types.TriggerConfig) ([]types.Item, error) {
	query := cfg.Filter.BuildQuery()
	limit := cfg.Limit()

	ids, err := t.mailbox.ListMessages(ctx, userId, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	if len(ids) == 0 {
		return []types.Item{}, nil
	}

	fetched := make([]*types.Item, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)

	for i, id := range ids {
		g.Go(func() error {
			item, err := t.mailbox.GetMessage(gctx, userId, id)
			if err != nil {
				if mailbox.IsNotFound(err) {
					log.Debug().Str("user_id", userId).Str("message_id", id).Msg("message disappeared before fetch, skipping")
					return nil
				}
				return fmt.Errorf("get message %s: %w", id, err)
			}
			fetched[i] = item
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	items := make([]types.Item, 0, len(fetched))
	for _, item := range fetched {
		if item != nil {
			items = append(items, *item)
		}
	}

	log.Info().Str("user_id", userId).Str("query", query).Int("listed", len(ids)).Int("fetched", len(items)).Msg("trigger fetched messages")
	return items, nil
}
