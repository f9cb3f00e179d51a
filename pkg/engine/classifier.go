package engine

import (
	"context"
	"sync"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/classify"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/metrics"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const defaultClassifyWorkers = 4

// ClassifierExecutor assigns every item one of a node's categories
type ClassifierExecutor struct {
	classifiers Classifiers
	workers     int
}

func NewClassifierExecutor(classifiers Classifiers, workers int) *ClassifierExecutor {
	if workers <= 0 {
		workers = defaultClassifyWorkers
	}
	return &ClassifierExecutor{classifiers: classifiers, workers: workers}
}

// ClassifierOutput holds per-item results and the provider failures that
// were resolved by the keyword classifier
type ClassifierOutput struct {
	Results map[string]types.ClassificationResult
	Issues  []types.ClassificationIssue
}

// Run classifies items concurrently. Provider failures never fail the node;
// only cancellation of ctx does, in which case the results gathered so far
// are still returned.
func (c *ClassifierExecutor) Run(ctx context.Context, userId, nodeId string, items []types.Item, cfg *types.ClassifierConfig) (*ClassifierOutput, error) {
	out := &ClassifierOutput{Results: make(map[string]types.ClassificationResult, len(items))}
	if len(items) == 0 {
		return out, nil
	}

	client := c.classifiers.For(cfg.Provider)
	issues := make([]*types.ClassificationIssue, len(items))

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(c.workers)

	for i := range items {
		item := items[i]
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}

			req := classify.Request{
				UserId:       userId,
				Item:         item,
				Categories:   cfg.Categories,
				SystemPrompt: cfg.SystemPrompt,
				Model:        cfg.Model,
			}
			result, issue := c.classifyOne(ctx, client, req)
			if ctx.Err() != nil && issue != nil {
				return nil
			}
			result.NodeId = nodeId

			mu.Lock()
			out.Results[item.Id] = result
			mu.Unlock()
			if issue != nil {
				issue.NodeId = nodeId
				issues[i] = issue
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, issue := range issues {
		if issue != nil {
			out.Issues = append(out.Issues, *issue)
		}
	}

	if err := ctx.Err(); err != nil {
		return out, err
	}
	return out, nil
}

func (c *ClassifierExecutor) classifyOne(ctx context.Context, client classify.Client, req classify.Request) (types.ClassificationResult, *types.ClassificationIssue) {
	decision, err := client.Classify(ctx, req)
	if err == nil {
		result := classify.Normalize(decision, req.Categories)
		metrics.Classifications.WithLabelValues(client.Name(), outcome(result)).Inc()
		return result, nil
	}

	classErr := &types.ClassificationError{ItemId: req.Item.Id, Err: err}
	log.Warn().Err(classErr).Str("provider", client.Name()).Msg("classification provider failed, using keyword classifier")
	metrics.Classifications.WithLabelValues(client.Name(), "error").Inc()

	fallback := c.classifiers.Fallback()
	decision, fbErr := fallback.Classify(ctx, req)
	if fbErr != nil {
		decision = nil
	}
	result := classify.Normalize(decision, req.Categories)
	metrics.Classifications.WithLabelValues(fallback.Name(), outcome(result)).Inc()

	return result, &types.ClassificationIssue{ItemId: req.Item.Id, Error: classErr.Error()}
}

func outcome(r types.ClassificationResult) string {
	if r.Fallback {
		return "fallback"
	}
	return "matched"
}
