package fusion

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
)

// Severity classifies how urgent a fired rule is.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// rank orders severities for recommendation sorting; higher is more urgent.
func (s Severity) rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

func (s Severity) valid() bool {
	return s == SeverityLow || s == SeverityMedium || s == SeverityHigh
}

// Category names a rule pack. Packs are evaluated in CategoryOrder.
type Category string

const (
	CategoryPest       Category = "pest"
	CategoryIrrigation Category = "irrigation"
	CategoryMarket     Category = "market"
)

// CategoryOrder fixes the cross-category iteration order so advisory output
// is reproducible.
var CategoryOrder = []Category{CategoryPest, CategoryIrrigation, CategoryMarket}

// Operator is the closed set of condition comparisons. The string form used
// in rule packs is parsed once at load time; evaluation never sees strings.
type Operator int

const (
	OpGreater Operator = iota
	OpLess
	OpGreaterEqual
	OpLessEqual
	OpEqual
	OpNotEqual
	OpAbsGreaterEqual // |value| >= threshold, for bidirectional deviation signals
)

func parseOperator(s string) (Operator, error) {
	switch s {
	case ">":
		return OpGreater, nil
	case "<":
		return OpLess, nil
	case ">=":
		return OpGreaterEqual, nil
	case "<=":
		return OpLessEqual, nil
	case "==":
		return OpEqual, nil
	case "!=":
		return OpNotEqual, nil
	case "abs_gte":
		return OpAbsGreaterEqual, nil
	}
	return 0, fmt.Errorf("unknown operator %q", s)
}

// apply evaluates the operator against a feature value. Comparisons are exact
// IEEE double comparisons with no tolerance.
func (op Operator) apply(value, threshold float64) bool {
	switch op {
	case OpGreater:
		return value > threshold
	case OpLess:
		return value < threshold
	case OpGreaterEqual:
		return value >= threshold
	case OpLessEqual:
		return value <= threshold
	case OpEqual:
		return value == threshold
	case OpNotEqual:
		return value != threshold
	case OpAbsGreaterEqual:
		return math.Abs(value) >= threshold
	}
	return false
}

// Condition is a single feature comparison. All conditions of a rule must
// hold for the rule to fire.
type Condition struct {
	Feature string
	Op      Operator
	Value   float64
}

// Rule is one advisory rule, immutable after load.
type Rule struct {
	ID             string
	Description    string
	Conditions     []Condition
	Score          float64
	Recommendation string
	Timeline       string
	Severity       Severity
	Category       Category
}

// Store holds all loaded rules, keyed by category, in load order. It is
// read-only after Load and safe to share across concurrent requests.
type Store struct {
	rules map[Category][]Rule
}

// Rules returns the load-ordered rules for one category.
func (s *Store) Rules(c Category) []Rule {
	return s.rules[c]
}

// Len reports the total number of loaded rules.
func (s *Store) Len() int {
	n := 0
	for _, rs := range s.rules {
		n += len(rs)
	}
	return n
}

// packRule is the JSON shape of a single rule inside a pack file.
type packRule struct {
	Description string `json:"description"`
	Conditions  []struct {
		Feature string  `json:"feature"`
		Op      string  `json:"op"`
		Value   float64 `json:"value"`
	} `json:"conditions"`
	Score          float64 `json:"score"`
	Recommendation string  `json:"recommendation"`
	Timeline       string  `json:"timeline,omitempty"`
	Severity       string  `json:"severity"`
}

// LoadStore reads the rule pack for every category from dir (<category>.json)
// and validates each rule against the feature vocabulary and operator set.
// Any malformed rule is fatal: a pack that references an unknown feature or
// operator must be rejected at startup, not skipped at request time.
func LoadStore(dir string) (*Store, error) {
	store := &Store{rules: make(map[Category][]Rule)}

	for _, cat := range CategoryOrder {
		path := filepath.Join(dir, string(cat)+".json")
		rules, err := loadPack(path, cat)
		if err != nil {
			return nil, fmt.Errorf("rule pack %s: %w", path, err)
		}
		store.rules[cat] = rules
	}

	return store, nil
}

func loadPack(path string, cat Category) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var pack map[string]packRule
	if err := json.Unmarshal(data, &pack); err != nil {
		return nil, fmt.Errorf("parse: %w", err)
	}

	// Pack files are JSON objects keyed by rule id; load order is the sorted
	// id order so evaluation and tie-breaking are reproducible across runs.
	ids := make([]string, 0, len(pack))
	for id := range pack {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rules := make([]Rule, 0, len(ids))
	for _, id := range ids {
		rule, err := buildRule(id, cat, pack[id])
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

func buildRule(id string, cat Category, pr packRule) (Rule, error) {
	if len(pr.Conditions) == 0 {
		return Rule{}, fmt.Errorf("rule %q: no conditions", id)
	}
	if pr.Score <= 0 || pr.Score > 1 {
		return Rule{}, fmt.Errorf("rule %q: score %v outside (0,1]", id, pr.Score)
	}
	sev := Severity(pr.Severity)
	if !sev.valid() {
		return Rule{}, fmt.Errorf("rule %q: invalid severity %q", id, pr.Severity)
	}

	conds := make([]Condition, 0, len(pr.Conditions))
	for _, c := range pr.Conditions {
		if !KnownFeature(c.Feature) {
			return Rule{}, fmt.Errorf("rule %q: unknown feature %q", id, c.Feature)
		}
		op, err := parseOperator(c.Op)
		if err != nil {
			return Rule{}, fmt.Errorf("rule %q: %w", id, err)
		}
		conds = append(conds, Condition{Feature: c.Feature, Op: op, Value: c.Value})
	}

	return Rule{
		ID:             id,
		Description:    pr.Description,
		Conditions:     conds,
		Score:          pr.Score,
		Recommendation: pr.Recommendation,
		Timeline:       pr.Timeline,
		Severity:       sev,
		Category:       cat,
	}, nil
}
