// Package analytics computes market statistics over a set of intents.
// Every function here is pure: inputs are never modified.
package analytics

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rongwang/intentmarket/internal/models"
)

// TopFeatureLimit is how many features Summarize reports
const TopFeatureLimit = 5

// FeatureCount is one entry of the feature frequency table. It is serialized
// as a [feature, count] pair.
type FeatureCount struct {
	Feature string
	Count   int
}

func (f FeatureCount) MarshalJSON() ([]byte, error) {
	return json.Marshal([]interface{}{f.Feature, f.Count})
}

func (f *FeatureCount) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("feature count: expected 2 elements, got %d", len(pair))
	}
	if err := json.Unmarshal(pair[0], &f.Feature); err != nil {
		return err
	}
	return json.Unmarshal(pair[1], &f.Count)
}

// Summary is the market analytics payload
type Summary struct {
	TotalIntents  int            `json:"totalIntents"`
	AvgBudget     int            `json:"avgBudget"`
	UrgentIntents int            `json:"urgentIntents"`
	UrgencyRate   int            `json:"urgencyRate"`
	TopFeatures   []FeatureCount `json:"topFeatures"`
}

// Summarize aggregates the given intents
func Summarize(intents []models.Intent) Summary {
	s := Summary{
		TotalIntents: len(intents),
		TopFeatures:  TopFeatures(intents, TopFeatureLimit),
	}

	var budgetSum float64
	budgeted := 0
	for _, i := range intents {
		if i.BudgetMin != nil && i.BudgetMax != nil {
			budgetSum += (*i.BudgetMin + *i.BudgetMax) / 2
			budgeted++
		}
		if IsUrgent(i.Timeframe) {
			s.UrgentIntents++
		}
	}
	if budgeted > 0 {
		s.AvgBudget = int(math.Round(budgetSum / float64(budgeted)))
	}
	if s.TotalIntents > 0 {
		s.UrgencyRate = int(math.Round(float64(s.UrgentIntents) / float64(s.TotalIntents) * 100))
	}
	return s
}

// IsUrgent reports whether a timeframe signals short-term need
func IsUrgent(timeframe string) bool {
	t := strings.ToLower(timeframe)
	return strings.Contains(t, "asap") || strings.Contains(t, "urgent") || strings.Contains(t, "week")
}

// TopFeatures returns the n most requested features, most frequent first.
// Ties keep the order in which features were first seen.
func TopFeatures(intents []models.Intent, n int) []FeatureCount {
	counts := make(map[string]int)
	var order []string
	for _, i := range intents {
		for _, f := range i.Features {
			if _, seen := counts[f]; !seen {
				order = append(order, f)
			}
			counts[f]++
		}
	}

	out := make([]FeatureCount, 0, len(order))
	for _, f := range order {
		out = append(out, FeatureCount{Feature: f, Count: counts[f]})
	}
	sort.SliceStable(out, func(a, b int) bool {
		return out[a].Count > out[b].Count
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

// BudgetBucket is a coarse budget band used by the analytics dashboard
type BudgetBucket string

const (
	BudgetAll      BudgetBucket = "all"
	BudgetUnder500 BudgetBucket = "under-500"
	Budget500To1k  BudgetBucket = "500-1000"
	Budget1kTo2k   BudgetBucket = "1000-2000"
	BudgetOver2k   BudgetBucket = "over-2000"
)

// ParseBudgetBucket accepts an empty string as BudgetAll
func ParseBudgetBucket(raw string) (BudgetBucket, error) {
	switch b := BudgetBucket(raw); b {
	case "":
		return BudgetAll, nil
	case BudgetAll, BudgetUnder500, Budget500To1k, Budget1kTo2k, BudgetOver2k:
		return b, nil
	}
	return "", fmt.Errorf("%w: unknown budgetFilter %q", models.ErrInvalidArgument, raw)
}

// Matches reports whether the intent falls in the bucket. Intents missing a
// bound the bucket compares are excluded.
func (b BudgetBucket) Matches(i models.Intent) bool {
	switch b {
	case BudgetUnder500:
		return i.BudgetMax != nil && *i.BudgetMax < 500
	case Budget500To1k:
		return i.BudgetMin != nil && i.BudgetMax != nil && *i.BudgetMin >= 500 && *i.BudgetMax <= 1000
	case Budget1kTo2k:
		return i.BudgetMin != nil && i.BudgetMax != nil && *i.BudgetMin >= 1000 && *i.BudgetMax <= 2000
	case BudgetOver2k:
		return i.BudgetMin != nil && *i.BudgetMin > 2000
	default:
		return true
	}
}

// TimeframeBucket groups intents by the wording of their timeframe
type TimeframeBucket string

const (
	TimeframeAll   TimeframeBucket = "all"
	TimeframeWeek  TimeframeBucket = "week"
	TimeframeMonth TimeframeBucket = "month"
	TimeframeASAP  TimeframeBucket = "ASAP"
)

// ParseTimeframeBucket accepts an empty string as TimeframeAll
func ParseTimeframeBucket(raw string) (TimeframeBucket, error) {
	switch b := TimeframeBucket(raw); b {
	case "":
		return TimeframeAll, nil
	case TimeframeAll, TimeframeWeek, TimeframeMonth, TimeframeASAP:
		return b, nil
	}
	return "", fmt.Errorf("%w: unknown timeframeFilter %q", models.ErrInvalidArgument, raw)
}

func (b TimeframeBucket) Matches(i models.Intent) bool {
	t := strings.ToLower(i.Timeframe)
	switch b {
	case TimeframeWeek:
		return strings.Contains(t, "week")
	case TimeframeMonth:
		return strings.Contains(t, "month")
	case TimeframeASAP:
		return strings.Contains(t, "asap") || strings.Contains(t, "urgent")
	default:
		return true
	}
}

// Filter narrows an intent list before aggregation
type Filter struct {
	Budget    BudgetBucket
	Timeframe TimeframeBucket
}

// Apply returns the intents matching both buckets in their original order
func (f Filter) Apply(intents []models.Intent) []models.Intent {
	out := make([]models.Intent, 0, len(intents))
	for _, i := range intents {
		if f.Budget.Matches(i) && f.Timeframe.Matches(i) {
			out = append(out, i)
		}
	}
	return out
}
