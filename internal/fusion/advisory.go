package fusion

import (
	"fmt"
	"sort"
	"strings"
)

// Recommendation is one actionable entry of an advisory, derived from a
// single fired rule.
type Recommendation struct {
	Title    string `json:"title"`
	Desc     string `json:"desc"`
	Priority string `json:"priority"`
	Timeline string `json:"timeline,omitempty"`
}

// Advisory is the crop-level synthesis of all fired rules, built fresh per
// request.
type Advisory struct {
	Crop            string                      `json:"crop"`
	Priority        string                      `json:"priority"`
	Severity        string                      `json:"severity"`
	Analysis        string                      `json:"analysis"`
	FiredRules      []FiredRule                 `json:"fired_rules"`
	Recommendations []Recommendation            `json:"recommendations"`
	RuleBreakdown   map[Category]CategoryResult `json:"rule_breakdown"`
	DataSources     []Source                    `json:"data_sources"`
}

// BuildAdvisory merges per-category results into one advisory. Ordering is
// fully deterministic: severity rank (high first), then category order, then
// rule load order.
func BuildAdvisory(crop string, results map[Category]CategoryResult, sources []Source) Advisory {
	var fired []FiredRule
	for _, cat := range CategoryOrder {
		fired = append(fired, results[cat].Fired...)
	}

	sort.SliceStable(fired, func(i, j int) bool {
		ri, rj := fired[i].Rule.Severity.rank(), fired[j].Rule.Severity.rank()
		if ri != rj {
			return ri > rj
		}
		if fired[i].category != fired[j].category {
			return fired[i].category < fired[j].category
		}
		return fired[i].loadIdx < fired[j].loadIdx
	})

	recs := make([]Recommendation, 0, len(fired))
	for _, f := range fired {
		recs = append(recs, Recommendation{
			Title:    f.Rule.Description,
			Desc:     f.Rule.Recommendation,
			Priority: string(f.Rule.Severity),
			Timeline: f.Rule.Timeline,
		})
	}

	priority := overallPriority(fired)

	return Advisory{
		Crop:            crop,
		Priority:        string(priority),
		Severity:        string(priority),
		Analysis:        analysisText(crop, fired, results),
		FiredRules:      fired,
		Recommendations: recs,
		RuleBreakdown:   results,
		DataSources:     sources,
	}
}

// overallPriority is high if any fired rule anywhere is high severity, else
// medium if any medium fired, else low.
func overallPriority(fired []FiredRule) Severity {
	priority := SeverityLow
	for _, f := range fired {
		if f.Rule.Severity.rank() > priority.rank() {
			priority = f.Rule.Severity
		}
	}
	return priority
}

func analysisText(crop string, fired []FiredRule, results map[Category]CategoryResult) string {
	if len(fired) == 0 {
		return fmt.Sprintf("No significant risk detected for %s based on current signals.", crop)
	}

	var parts []string
	for _, cat := range CategoryOrder {
		r := results[cat]
		if len(r.Fired) == 0 {
			continue
		}
		parts = append(parts, fmt.Sprintf("%s risk score %.2f (%d rule(s) fired)", cat, r.Score, len(r.Fired)))
	}

	return fmt.Sprintf("%d signal(s) detected for %s: %s.", len(fired), crop, strings.Join(parts, ", "))
}
