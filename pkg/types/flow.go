package types

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

type NodeType string

const (
	NodeTypeTrigger    NodeType = "trigger"
	NodeTypeClassifier NodeType = "classifier"
	NodeTypeAction     NodeType = "action"
)

type ActionType string

const (
	ActionLabel   ActionType = "label"
	ActionArchive ActionType = "archive"
	ActionMove    ActionType = "move"
)

// Valid returns true for the action types the engine knows how to apply
func (a ActionType) Valid() bool {
	switch a {
	case ActionLabel, ActionArchive, ActionMove:
		return true
	}
	return false
}

const (
	DefaultMaxItems = 10
	MaxItemsLimit   = 100
)

// Flow is a user-authored automation graph. A Flow is a value: executors and
// the orchestrator never mutate it.
type Flow struct {
	Id    string `json:"id"`
	Name  string `json:"name"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Edge connects two nodes. A non-empty Condition names a category that must be
// present in the batch for the edge to be followed.
type Edge struct {
	Id        string `json:"id"`
	Source    string `json:"source"`
	Target    string `json:"target"`
	Condition string `json:"condition,omitempty"`
}

// NodeConfig is implemented by exactly one config struct per node type
type NodeConfig interface {
	NodeType() NodeType
}

// Node is a tagged union over trigger, classifier and action nodes
type Node struct {
	Id     string
	Type   NodeType
	Label  string
	Config NodeConfig

	// Raw keeps the undecoded config so that a node with a bad payload can
	// still be reported by the validator instead of failing the whole parse.
	Raw       map[string]any
	decodeErr error
}

// DecodeErr returns the error produced while decoding the node config, if any
func (n Node) DecodeErr() error {
	return n.decodeErr
}

func (n Node) Trigger() (*TriggerConfig, bool) {
	c, ok := n.Config.(*TriggerConfig)
	return c, ok
}

func (n Node) Classifier() (*ClassifierConfig, bool) {
	c, ok := n.Config.(*ClassifierConfig)
	return c, ok
}

func (n Node) Action() (*ActionConfig, bool) {
	c, ok := n.Config.(*ActionConfig)
	return c, ok
}

// TriggerConfig selects the candidate messages for a run
type TriggerConfig struct {
	MaxItems int             `mapstructure:"maxItems" json:"maxItems"`
	Filter   *FilterCriteria `mapstructure:"filterCriteria" json:"filterCriteria,omitempty"`
}

func (*TriggerConfig) NodeType() NodeType { return NodeTypeTrigger }

// Limit returns MaxItems with the default applied and the upper bound enforced
func (c *TriggerConfig) Limit() int {
	if c.MaxItems <= 0 {
		return DefaultMaxItems
	}
	if c.MaxItems > MaxItemsLimit {
		return MaxItemsLimit
	}
	return c.MaxItems
}

// FilterCriteria narrows the mailbox listing. Query is passed through verbatim;
// the structured fields are appended as search operators.
type FilterCriteria struct {
	Query         string `mapstructure:"query" json:"query,omitempty"`
	From          string `mapstructure:"from" json:"from,omitempty"`
	Subject       string `mapstructure:"subject" json:"subject,omitempty"`
	Label         string `mapstructure:"label" json:"label,omitempty"`
	UnreadOnly    bool   `mapstructure:"unreadOnly" json:"unreadOnly,omitempty"`
	NewerThanDays int    `mapstructure:"newerThanDays" json:"newerThanDays,omitempty"`
}

const DefaultQuery = "in:inbox"

// BuildQuery renders the criteria as a mailbox search query
func (f *FilterCriteria) BuildQuery() string {
	if f == nil {
		return DefaultQuery
	}

	var parts []string
	if q := strings.TrimSpace(f.Query); q != "" {
		parts = append(parts, q)
	}
	if f.From != "" {
		parts = append(parts, "from:"+quoteTerm(f.From))
	}
	if f.Subject != "" {
		parts = append(parts, "subject:"+quoteTerm(f.Subject))
	}
	if f.Label != "" {
		parts = append(parts, "label:"+quoteTerm(f.Label))
	}
	if f.UnreadOnly {
		parts = append(parts, "is:unread")
	}
	if f.NewerThanDays > 0 {
		parts = append(parts, fmt.Sprintf("newer_than:%dd", f.NewerThanDays))
	}

	if len(parts) == 0 {
		return DefaultQuery
	}
	return strings.Join(parts, " ")
}

func quoteTerm(s string) string {
	if strings.ContainsAny(s, " \t") {
		return `"` + s + `"`
	}
	return s
}

// ClassifierConfig assigns each item exactly one of Categories
type ClassifierConfig struct {
	Provider     string   `mapstructure:"provider" json:"provider,omitempty"`
	Model        string   `mapstructure:"model" json:"model,omitempty"`
	Categories   []string `mapstructure:"categories" json:"categories"`
	SystemPrompt string   `mapstructure:"systemPrompt" json:"systemPrompt,omitempty"`
}

func (*ClassifierConfig) NodeType() NodeType { return NodeTypeClassifier }

// ActionConfig applies a mailbox mutation to items classified as Category
type ActionConfig struct {
	ActionType  ActionType `mapstructure:"actionType" json:"actionType"`
	Category    string     `mapstructure:"category" json:"category,omitempty"`
	LabelName   string     `mapstructure:"labelName" json:"labelName,omitempty"`
	Destination string     `mapstructure:"destination" json:"destination,omitempty"`
}

func (*ActionConfig) NodeType() NodeType { return NodeTypeAction }

// TargetLabel is the label applied by a label action
func (c *ActionConfig) TargetLabel() string {
	if c.LabelName != "" {
		return c.LabelName
	}
	return c.Category
}

type nodeData struct {
	Label  string         `json:"label,omitempty"`
	Config map[string]any `json:"config"`
}

type wireNode struct {
	Id   string   `json:"id"`
	Type NodeType `json:"type"`
	Data nodeData `json:"data"`
}

func (n *Node) UnmarshalJSON(b []byte) error {
	var w wireNode
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}

	*n = NewNode(w.Id, w.Type, w.Data.Label, w.Data.Config)
	return nil
}

func (n Node) MarshalJSON() ([]byte, error) {
	w := wireNode{Id: n.Id, Type: n.Type, Data: nodeData{Label: n.Label, Config: n.Raw}}

	if n.Config != nil {
		// Round-trip the typed config so stored flows carry normalized payloads
		b, err := json.Marshal(n.Config)
		if err != nil {
			return nil, err
		}
		cfg := map[string]any{}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return nil, err
		}
		w.Data.Config = cfg
	}

	return json.Marshal(w)
}

// NewNode builds a node and decodes raw into the config type selected by t
func NewNode(id string, t NodeType, label string, raw map[string]any) Node {
	cfg, err := DecodeNodeConfig(t, raw)
	return Node{
		Id:        id,
		Type:      t,
		Label:     label,
		Config:    cfg,
		Raw:       raw,
		decodeErr: err,
	}
}

// DecodeNodeConfig decodes an untyped config payload into its typed form
func DecodeNodeConfig(t NodeType, raw map[string]any) (NodeConfig, error) {
	var target NodeConfig
	switch t {
	case NodeTypeTrigger:
		target = &TriggerConfig{}
	case NodeTypeClassifier:
		target = &ClassifierConfig{}
	case NodeTypeAction:
		target = &ActionConfig{}
	default:
		return nil, fmt.Errorf("unknown node type %q", t)
	}

	if raw == nil {
		return target, nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       filterCriteriaHook,
		WeaklyTypedInput: true,
		Result:           target,
	})
	if err != nil {
		return nil, err
	}

	if err := decoder.Decode(raw); err != nil {
		return nil, fmt.Errorf("invalid %s config: %w", t, err)
	}

	return target, nil
}

// filterCriteriaHook accepts a bare query string wherever FilterCriteria is expected
func filterCriteriaHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String {
		return data, nil
	}
	if to != reflect.TypeOf(FilterCriteria{}) && to != reflect.TypeOf(&FilterCriteria{}) {
		return data, nil
	}
	return map[string]any{"query": data}, nil
}
