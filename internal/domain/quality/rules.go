package quality

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
)

type RuleType string

const (
	RuleAutoPublish    RuleType = "auto_publish"
	RuleAutoCategorize RuleType = "auto_categorize"
	RuleAutoTag        RuleType = "auto_tag"
	RuleContentFilter  RuleType = "content_filter"
)

type ActionKind string

const (
	ActionSetCategory     ActionKind = "set_category"
	ActionAddTags         ActionKind = "add_tags"
	ActionSetPriority     ActionKind = "set_priority"
	ActionFlagForReview   ActionKind = "flag_for_review"
	ActionReject          ActionKind = "reject"
	ActionMarkAutoPublish ActionKind = "mark_auto_publish"
)

// actionOrder is the fixed application order inside one rule.
var actionOrder = map[ActionKind]int{
	ActionSetCategory:     0,
	ActionAddTags:         1,
	ActionSetPriority:     2,
	ActionFlagForReview:   3,
	ActionReject:          4,
	ActionMarkAutoPublish: 5,
}

var allowedActions = map[RuleType]map[ActionKind]struct{}{
	RuleAutoPublish: {
		ActionMarkAutoPublish: {},
		ActionSetPriority:     {},
		ActionAddTags:         {},
	},
	RuleAutoCategorize: {
		ActionSetCategory: {},
		ActionSetPriority: {},
		ActionAddTags:     {},
	},
	RuleAutoTag: {
		ActionAddTags: {},
	},
	RuleContentFilter: {
		ActionFlagForReview: {},
		ActionReject:        {},
		ActionAddTags:       {},
		ActionSetPriority:   {},
	},
}

// Action is a closed set of rule effects.
type Action interface {
	Kind() ActionKind
	apply(out *RuleOutcome, rule Rule)
}

type SetCategory struct{ Category string }

type AddTags struct{ Tags []string }

type SetPriority struct{ Priority int }

type FlagForReview struct{ Reason string }

type Reject struct{ Reason string }

type MarkAutoPublish struct{}

func (SetCategory) Kind() ActionKind     { return ActionSetCategory }
func (AddTags) Kind() ActionKind         { return ActionAddTags }
func (SetPriority) Kind() ActionKind     { return ActionSetPriority }
func (FlagForReview) Kind() ActionKind   { return ActionFlagForReview }
func (Reject) Kind() ActionKind          { return ActionReject }
func (MarkAutoPublish) Kind() ActionKind { return ActionMarkAutoPublish }

func (a SetCategory) apply(out *RuleOutcome, _ Rule) { out.Draft.Category = a.Category }

func (a AddTags) apply(out *RuleOutcome, _ Rule) {
	out.Draft.Tags = NormalizeTags(append(out.Draft.Tags, a.Tags...))
}

func (a SetPriority) apply(out *RuleOutcome, _ Rule) { out.Draft.Priority = a.Priority }

func (a FlagForReview) apply(out *RuleOutcome, rule Rule) {
	out.FlaggedForReview = true
	out.Warnings = append(out.Warnings, fmt.Sprintf("rule %s (%s) flagged content for review: %s", rule.ID, rule.Name, reasonOrDefault(a.Reason)))
}

func (a Reject) apply(out *RuleOutcome, rule Rule) {
	out.Filtered = true
	out.Rejections = append(out.Rejections, RuleRejection{RuleID: rule.ID, RuleName: rule.Name, Reason: reasonOrDefault(a.Reason)})
}

func (MarkAutoPublish) apply(out *RuleOutcome, _ Rule) { out.AutoPublish = true }

func reasonOrDefault(reason string) string {
	if strings.TrimSpace(reason) == "" {
		return "no reason given"
	}
	return strings.TrimSpace(reason)
}

type IntRange struct {
	Min *int `json:"min,omitempty" yaml:"min,omitempty"`
	Max *int `json:"max,omitempty" yaml:"max,omitempty"`
}

func (r *IntRange) contains(v int) bool {
	if r == nil {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return false
	}
	if r.Max != nil && v > *r.Max {
		return false
	}
	return true
}

func (r *IntRange) validate(name string) error {
	if r == nil {
		return nil
	}
	if r.Min != nil && *r.Min < 0 {
		return fmt.Errorf("%s.min must not be negative", name)
	}
	if r.Min != nil && r.Max != nil && *r.Min > *r.Max {
		return fmt.Errorf("%s.min %d exceeds max %d", name, *r.Min, *r.Max)
	}
	return nil
}

// Conditions are AND-combined. Empty lists and nil ranges match anything.
// Keywords, categories and content types match when any entry matches;
// RequiredTags match only when every tag is present.
type Conditions struct {
	ContentTypes []string  `json:"content_types,omitempty" yaml:"content_types,omitempty"`
	Categories   []string  `json:"categories,omitempty" yaml:"categories,omitempty"`
	RequiredTags []string  `json:"required_tags,omitempty" yaml:"required_tags,omitempty"`
	Keywords     []string  `json:"keywords,omitempty" yaml:"keywords,omitempty"`
	Length       *IntRange `json:"length,omitempty" yaml:"length,omitempty"`
	WordCount    *IntRange `json:"word_count,omitempty" yaml:"word_count,omitempty"`
	SourceCount  *IntRange `json:"source_count,omitempty" yaml:"source_count,omitempty"`
}

func (c Conditions) Matches(d Draft) bool {
	if len(c.ContentTypes) > 0 && !slices.ContainsFunc(c.ContentTypes, func(ct string) bool {
		return equalFolded(ct, string(d.ContentType))
	}) {
		return false
	}
	if len(c.Categories) > 0 && !slices.ContainsFunc(c.Categories, func(cat string) bool {
		return equalFolded(cat, d.Category)
	}) {
		return false
	}
	for _, required := range c.RequiredTags {
		if !slices.ContainsFunc(d.Tags, func(tag string) bool { return equalFolded(tag, required) }) {
			return false
		}
	}
	if len(c.Keywords) > 0 {
		text := d.Text()
		if !slices.ContainsFunc(c.Keywords, func(kw string) bool { return containsFolded(text, kw) }) {
			return false
		}
	}
	return c.Length.contains(d.Length()) &&
		c.WordCount.contains(d.WordCount()) &&
		c.SourceCount.contains(len(d.Sources))
}

// ActionSpec is the serialized form of a rule's actions.
type ActionSpec struct {
	SetCategory   string   `json:"set_category,omitempty" yaml:"set_category,omitempty"`
	AddTags       []string `json:"add_tags,omitempty" yaml:"add_tags,omitempty"`
	SetPriority   *int     `json:"set_priority,omitempty" yaml:"set_priority,omitempty"`
	FlagForReview bool     `json:"flag_for_review,omitempty" yaml:"flag_for_review,omitempty"`
	Reject        bool     `json:"reject,omitempty" yaml:"reject,omitempty"`
	AutoPublish   bool     `json:"auto_publish,omitempty" yaml:"auto_publish,omitempty"`
	Reason        string   `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// RuleDefinition is the stored and file form of a rule. Compile turns it into
// a Rule or reports why it cannot be evaluated.
type RuleDefinition struct {
	ID         string     `json:"id" yaml:"id" jsonschema:"required"`
	Name       string     `json:"name" yaml:"name"`
	Type       RuleType   `json:"type" yaml:"type" jsonschema:"required,enum=auto_publish,enum=auto_categorize,enum=auto_tag,enum=content_filter"`
	Priority   int        `json:"priority" yaml:"priority"`
	Active     *bool      `json:"active,omitempty" yaml:"active,omitempty"`
	Version    int        `json:"version,omitempty" yaml:"version,omitempty"`
	Conditions Conditions `json:"conditions" yaml:"conditions"`
	Actions    ActionSpec `json:"actions" yaml:"actions" jsonschema:"required"`
}

func (d RuleDefinition) IsActive() bool {
	return d.Active == nil || *d.Active
}

type Rule struct {
	ID         string
	Name       string
	Type       RuleType
	Priority   int
	Active     bool
	Version    int
	Conditions Conditions
	Actions    []Action
}

func CompileRule(def RuleDefinition) (Rule, error) {
	id := strings.TrimSpace(def.ID)
	if id == "" {
		return Rule{}, fmt.Errorf("%w: rule id is required", ErrConfiguration)
	}
	allowed, ok := allowedActions[def.Type]
	if !ok {
		return Rule{}, fmt.Errorf("%w: rule %s has unknown type %q", ErrConfiguration, id, def.Type)
	}

	actions := make([]Action, 0, 4)
	acts := def.Actions
	if category := strings.TrimSpace(acts.SetCategory); category != "" {
		actions = append(actions, SetCategory{Category: category})
	}
	if tags := NormalizeTags(acts.AddTags); len(tags) > 0 {
		actions = append(actions, AddTags{Tags: tags})
	}
	if acts.SetPriority != nil {
		actions = append(actions, SetPriority{Priority: *acts.SetPriority})
	}
	if acts.FlagForReview {
		actions = append(actions, FlagForReview{Reason: acts.Reason})
	}
	if acts.Reject {
		actions = append(actions, Reject{Reason: acts.Reason})
	}
	if acts.AutoPublish {
		actions = append(actions, MarkAutoPublish{})
	}
	if len(actions) == 0 {
		return Rule{}, fmt.Errorf("%w: rule %s has no actions", ErrConfiguration, id)
	}
	if acts.Reject && acts.AutoPublish {
		return Rule{}, fmt.Errorf("%w: rule %s both rejects and auto-publishes", ErrConfiguration, id)
	}
	for _, action := range actions {
		if _, ok := allowed[action.Kind()]; !ok {
			return Rule{}, fmt.Errorf("%w: rule %s of type %s cannot %s", ErrConfiguration, id, def.Type, action.Kind())
		}
	}
	slices.SortFunc(actions, func(a, b Action) int {
		return cmp.Compare(actionOrder[a.Kind()], actionOrder[b.Kind()])
	})

	cond := def.Conditions
	for _, kw := range cond.Keywords {
		if strings.TrimSpace(kw) == "" {
			return Rule{}, fmt.Errorf("%w: rule %s has an empty keyword", ErrConfiguration, id)
		}
	}
	for _, ct := range cond.ContentTypes {
		if _, err := NormalizeContentType(ct); err != nil {
			return Rule{}, fmt.Errorf("%w: rule %s: %v", ErrConfiguration, id, err)
		}
	}
	if err := cmp.Or(
		cond.Length.validate("length"),
		cond.WordCount.validate("word_count"),
		cond.SourceCount.validate("source_count"),
	); err != nil {
		return Rule{}, fmt.Errorf("%w: rule %s: %v", ErrConfiguration, id, err)
	}

	name := strings.TrimSpace(def.Name)
	if name == "" {
		name = id
	}
	return Rule{
		ID:         id,
		Name:       name,
		Type:       def.Type,
		Priority:   def.Priority,
		Active:     def.IsActive(),
		Version:    def.Version,
		Conditions: cond,
		Actions:    actions,
	}, nil
}

type TriggeredRule struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Type    RuleType     `json:"type"`
	Version int          `json:"version"`
	Actions []ActionKind `json:"actions"`
}

type SkippedRule struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type RuleRejection struct {
	RuleID   string `json:"rule_id"`
	RuleName string `json:"rule_name"`
	Reason   string `json:"reason"`
}

type RuleOutcome struct {
	Draft            Draft           `json:"draft"`
	Triggered        []TriggeredRule `json:"triggered,omitempty"`
	Skipped          []SkippedRule   `json:"skipped,omitempty"`
	Warnings         []string        `json:"warnings,omitempty"`
	Rejections       []RuleRejection `json:"rejections,omitempty"`
	Filtered         bool            `json:"filtered"`
	FlaggedForReview bool            `json:"flagged_for_review"`
	AutoPublish      bool            `json:"auto_publish"`
}

func (o RuleOutcome) TriggeredIDs() []string {
	out := make([]string, 0, len(o.Triggered))
	for _, rule := range o.Triggered {
		out = append(out, rule.ID)
	}
	return out
}

// ApplyRules evaluates the active rules against a working copy of draft.
// Rules run by priority (highest first, id ascending on ties) and each sees the
// mutations of the rules before it. A draft that already carries a Baseline is
// reset to it first, so repeated runs over the same rule set agree.
func ApplyRules(draft Draft, defs []RuleDefinition) RuleOutcome {
	work := draft.Clone()
	if work.Baseline != nil {
		work.Category = work.Baseline.Category
		work.Tags = slices.Clone(work.Baseline.Tags)
		work.Priority = work.Baseline.Priority
	} else {
		work.Baseline = &DraftBaseline{
			Category: work.Category,
			Tags:     slices.Clone(work.Tags),
			Priority: work.Priority,
		}
	}

	out := RuleOutcome{Draft: work}

	rules := make([]Rule, 0, len(defs))
	for _, def := range defs {
		if !def.IsActive() {
			continue
		}
		rule, err := CompileRule(def)
		if err != nil {
			out.Skipped = append(out.Skipped, SkippedRule{ID: def.ID, Reason: err.Error()})
			continue
		}
		rules = append(rules, rule)
	}
	slices.SortStableFunc(rules, func(a, b Rule) int {
		if c := cmp.Compare(b.Priority, a.Priority); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	for _, rule := range rules {
		if !rule.Conditions.Matches(out.Draft) {
			continue
		}
		kinds := make([]ActionKind, 0, len(rule.Actions))
		for _, action := range rule.Actions {
			action.apply(&out, rule)
			kinds = append(kinds, action.Kind())
		}
		out.Triggered = append(out.Triggered, TriggeredRule{
			ID:      rule.ID,
			Name:    rule.Name,
			Type:    rule.Type,
			Version: rule.Version,
			Actions: kinds,
		})
	}
	return out
}
