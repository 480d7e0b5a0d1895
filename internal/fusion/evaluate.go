package fusion

// FiredRule records one rule whose conditions all held, together with the
// concrete feature values that satisfied it. Produced per evaluation, never
// persisted.
type FiredRule struct {
	Rule     *Rule              `json:"-"`
	ID       string             `json:"id"`
	Matched  map[string]float64 `json:"matched"`
	loadIdx  int
	category int
}

// CategoryResult is the outcome of evaluating one category's rules.
type CategoryResult struct {
	Score float64     `json:"score"`
	Fired []FiredRule `json:"fired"`
}

// EvaluateCategory applies every rule of one category against the feature
// set, in load order. A rule fires only if all of its conditions hold and
// every referenced feature is present; a missing feature means the rule
// cannot fire. The category score is the sum of fired scores clamped to
// [0,1]; excess is discarded, never renormalized.
func EvaluateCategory(store *Store, cat Category, fs FeatureSet) CategoryResult {
	var result CategoryResult

	catIdx := categoryIndex(cat)
	rules := store.Rules(cat)
	for i := range rules {
		rule := &rules[i]
		matched, ok := evaluateRule(rule, fs)
		if !ok {
			continue
		}
		result.Fired = append(result.Fired, FiredRule{
			Rule:     rule,
			ID:       rule.ID,
			Matched:  matched,
			loadIdx:  i,
			category: catIdx,
		})
		result.Score += rule.Score
	}

	if result.Score > 1 {
		result.Score = 1
	}
	return result
}

// EvaluateAll evaluates every category in the fixed category order.
func EvaluateAll(store *Store, fs FeatureSet) map[Category]CategoryResult {
	results := make(map[Category]CategoryResult, len(CategoryOrder))
	for _, cat := range CategoryOrder {
		results[cat] = EvaluateCategory(store, cat, fs)
	}
	return results
}

func evaluateRule(rule *Rule, fs FeatureSet) (map[string]float64, bool) {
	matched := make(map[string]float64, len(rule.Conditions))
	for _, cond := range rule.Conditions {
		value, present := fs[cond.Feature]
		if !present {
			return nil, false
		}
		if !cond.Op.apply(value, cond.Value) {
			return nil, false
		}
		matched[cond.Feature] = value
	}
	return matched, true
}

func categoryIndex(cat Category) int {
	for i, c := range CategoryOrder {
		if c == cat {
			return i
		}
	}
	return len(CategoryOrder)
}
