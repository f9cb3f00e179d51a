package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Shay-Sh/BizOSV1-sub000/pkg/mailbox"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/metrics"
	"github.com/Shay-Sh/BizOSV1-sub000/pkg/types"
	"github.com/rs/zerolog/log"
)

// ActionExecutor applies a node's mailbox mutation to the items classified
// into its category. Failures are recorded per item and never abort the run.
type ActionExecutor struct {
	mailbox Mailbox
	now     func() time.Time
}

func NewActionExecutor(mb Mailbox) *ActionExecutor {
	return &ActionExecutor{mailbox: mb, now: time.Now}
}

// Run applies the action and updates the label sets of mutated items in execCtx
func (a *ActionExecutor) Run(ctx context.Context, node types.Node, execCtx *types.ExecutionContext) []types.ActionRecord {
	cfg, ok := node.Action()
	if !ok {
		return nil
	}

	run := &actionRun{
		ActionExecutor: a,
		ctx:            ctx,
		userId:         execCtx.UserId,
		nodeId:         node.Id,
		cfg:            cfg,
	}

	records := []types.ActionRecord{}
	for _, target := range targets(execCtx, cfg.Category) {
		if ctx.Err() != nil {
			break
		}
		record := run.apply(execCtx.Item(target.itemId), target.category)
		metrics.Actions.WithLabelValues(string(cfg.ActionType), result(record.Success)).Inc()
		records = append(records, record)
	}
	return records
}

type target struct {
	itemId   string
	category string
}

// targets returns the items, in batch order, whose non-fallback
// classification equals category. An empty category selects every
// classified item.
func targets(execCtx *types.ExecutionContext, category string) []target {
	var out []target
	for _, item := range execCtx.Items {
		r, ok := execCtx.Classifications[item.Id]
		if !ok || r.Fallback {
			continue
		}
		if category != "" && !strings.EqualFold(r.Category, category) {
			continue
		}
		out = append(out, target{itemId: item.Id, category: r.Category})
	}
	return out
}

// actionRun is the state of one node execution. Labels are listed at most
// once and reused for every item.
type actionRun struct {
	*ActionExecutor
	ctx    context.Context
	userId string
	nodeId string
	cfg    *types.ActionConfig

	labels    []mailbox.Label
	labelsErr error
	listed    bool
	resolved  map[string]mailbox.Label
}

func (r *actionRun) apply(item *types.Item, category string) types.ActionRecord {
	record := types.ActionRecord{
		ItemId:   item.Id,
		NodeId:   r.nodeId,
		Action:   r.cfg.ActionType,
		Category: category,
		At:       r.now().UTC(),
	}

	var err error
	switch r.cfg.ActionType {
	case types.ActionLabel:
		record.Label = r.cfg.TargetLabel()
		record.Message, err = r.label(item, record.Label)
	case types.ActionArchive:
		record.Message, err = r.archive(item)
	case types.ActionMove:
		record.Label = r.cfg.Destination
		record.Message, err = r.move(item)
	default:
		err = fmt.Errorf("unsupported action type %q", r.cfg.ActionType)
	}

	if err != nil {
		actionErr := &types.ActionError{ItemId: item.Id, Action: r.cfg.ActionType, Err: err}
		log.Warn().Err(actionErr).Str("node_id", r.nodeId).Msg("action failed")
		record.Message = actionErr.Error()
		return record
	}

	record.Success = true
	return record
}

func (r *actionRun) label(item *types.Item, name string) (string, error) {
	label, err := r.resolveOrCreate(name)
	if err != nil {
		return "", err
	}
	if item.HasLabel(label.Id) {
		return "label already applied", nil
	}
	if err := r.modify(item, []string{label.Id}, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("applied label %q", name), nil
}

func (r *actionRun) archive(item *types.Item) (string, error) {
	if !item.HasLabel(mailbox.LabelInbox) {
		return "already archived", nil
	}
	if err := r.modify(item, nil, []string{mailbox.LabelInbox}); err != nil {
		return "", err
	}
	return "archived", nil
}

func (r *actionRun) move(item *types.Item) (string, error) {
	labels, err := r.listLabels()
	if err != nil {
		return "", err
	}
	dest, ok := findDestination(labels, r.cfg.Destination)
	if !ok {
		return "", fmt.Errorf("destination %q not found", r.cfg.Destination)
	}
	if item.HasLabel(dest.Id) && !item.HasLabel(mailbox.LabelInbox) {
		return "already moved", nil
	}

	var remove []string
	if dest.Id != mailbox.LabelInbox {
		remove = []string{mailbox.LabelInbox}
	}
	if err := r.modify(item, []string{dest.Id}, remove); err != nil {
		return "", err
	}
	return fmt.Sprintf("moved to %q", dest.Name), nil
}

func (r *actionRun) modify(item *types.Item, add, remove []string) error {
	labels, err := r.mailbox.ModifyLabels(r.ctx, r.userId, item.Id, add, remove)
	if err != nil {
		return err
	}
	if labels != nil {
		item.Labels = labels
	} else {
		item.ApplyLabelChange(add, remove)
	}
	return nil
}

func (r *actionRun) listLabels() ([]mailbox.Label, error) {
	if !r.listed {
		r.labels, r.labelsErr = r.mailbox.ListLabels(r.ctx, r.userId)
		r.listed = r.labelsErr == nil
	}
	return r.labels, r.labelsErr
}

// resolveOrCreate finds a label by exact name, creating it when absent. A
// conflict on create means the label appeared meanwhile or differs only in
// case, so the list is refreshed and searched again.
func (r *actionRun) resolveOrCreate(name string) (mailbox.Label, error) {
	if l, ok := r.resolved[name]; ok {
		return l, nil
	}

	l, err := r.lookupOrCreate(name)
	if err != nil {
		return mailbox.Label{}, err
	}
	if r.resolved == nil {
		r.resolved = map[string]mailbox.Label{}
	}
	r.resolved[name] = l
	return l, nil
}

func (r *actionRun) lookupOrCreate(name string) (mailbox.Label, error) {
	labels, err := r.listLabels()
	if err != nil {
		return mailbox.Label{}, err
	}
	if l, ok := findByName(labels, name); ok {
		return l, nil
	}

	created, err := r.mailbox.CreateLabel(r.ctx, r.userId, name)
	if err == nil {
		log.Info().Str("user_id", r.userId).Str("label", name).Msg("created label")
		return *created, nil
	}
	if !mailbox.IsConflict(err) {
		return mailbox.Label{}, fmt.Errorf("create label %q: %w", name, err)
	}

	r.listed = false
	labels, err = r.listLabels()
	if err != nil {
		return mailbox.Label{}, err
	}
	if l, ok := findByName(labels, name); ok {
		return l, nil
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, name) {
			return l, nil
		}
	}
	return mailbox.Label{}, fmt.Errorf("label %q conflicts with an existing label", name)
}

func findByName(labels []mailbox.Label, name string) (mailbox.Label, bool) {
	for _, l := range labels {
		if l.Name == name {
			return l, true
		}
	}
	return mailbox.Label{}, false
}

// findDestination matches by exact name, then id, then case-insensitive name
func findDestination(labels []mailbox.Label, dest string) (mailbox.Label, bool) {
	dest = strings.TrimSpace(dest)
	if l, ok := findByName(labels, dest); ok {
		return l, true
	}
	for _, l := range labels {
		if l.Id == dest {
			return l, true
		}
	}
	for _, l := range labels {
		if strings.EqualFold(l.Name, dest) {
			return l, true
		}
	}
	return mailbox.Label{}, false
}

func result(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
