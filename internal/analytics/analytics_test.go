package analytics

import (
	"encoding/json"
	"testing"

	"github.com/rongwang/intentmarket/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func f(v float64) *float64 { return &v }

func sampleIntents() []models.Intent {
	return []models.Intent{
		{ID: "1", Timeframe: "ASAP", BudgetMin: f(400), BudgetMax: f(600), Features: []string{"OLED", "5G"}},
		{ID: "2", Timeframe: "Within 1 month", BudgetMin: f(1000), Features: []string{"5G"}},
		{ID: "3", Timeframe: "Within 1 week", BudgetMin: f(2000), BudgetMax: f(3000), Features: []string{"Stylus", "OLED", "5G"}},
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize(sampleIntents())

	assert.Equal(t, 3, s.TotalIntents)
	assert.Equal(t, 1500, s.AvgBudget) // midpoints 500 and 2500; intent 2 has no max
	assert.Equal(t, 2, s.UrgentIntents)
	assert.Equal(t, 67, s.UrgencyRate)
	assert.Equal(t, []FeatureCount{{"5G", 3}, {"OLED", 2}, {"Stylus", 1}}, s.TopFeatures)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, Summary{TopFeatures: []FeatureCount{}}, s)

	b, err := json.Marshal(s)
	require.NoError(t, err)
	assert.JSONEq(t, `{"totalIntents":0,"avgBudget":0,"urgentIntents":0,"urgencyRate":0,"topFeatures":[]}`, string(b))
}

func TestSummarizeIsOrderIndependent(t *testing.T) {
	in := sampleIntents()
	reversed := []models.Intent{in[2], in[1], in[0]}

	a, b := Summarize(in), Summarize(reversed)
	assert.Equal(t, a.TotalIntents, b.TotalIntents)
	assert.Equal(t, a.AvgBudget, b.AvgBudget)
	assert.Equal(t, a.UrgencyRate, b.UrgencyRate)
	assert.Equal(t, a, Summarize(in))
}

func TestSummarizeDoesNotModifyInput(t *testing.T) {
	in := sampleIntents()
	before := sampleIntents()
	Summarize(in)
	assert.Equal(t, before, in)
}

func TestTopFeaturesTiesKeepFirstSeenOrder(t *testing.T) {
	intents := []models.Intent{
		{Features: []string{"b", "a"}},
		{Features: []string{"c", "a", "b"}},
		{Features: []string{"d", "e", "f"}},
	}
	got := TopFeatures(intents, 5)
	assert.Equal(t, []FeatureCount{{"b", 2}, {"a", 2}, {"c", 1}, {"d", 1}, {"e", 1}}, got)
}

func TestFeatureCountJSONPair(t *testing.T) {
	b, err := json.Marshal([]FeatureCount{{"5G", 3}})
	require.NoError(t, err)
	assert.JSONEq(t, `[["5G",3]]`, string(b))

	var out []FeatureCount
	require.NoError(t, json.Unmarshal(b, &out))
	assert.Equal(t, []FeatureCount{{"5G", 3}}, out)

	var bad FeatureCount
	assert.Error(t, json.Unmarshal([]byte(`["only"]`), &bad))
}

func TestIsUrgent(t *testing.T) {
	assert.True(t, IsUrgent("ASAP"))
	assert.True(t, IsUrgent("Urgent please"))
	assert.True(t, IsUrgent("Within 2 weeks"))
	assert.False(t, IsUrgent("Within 1 month"))
}

func TestBudgetBuckets(t *testing.T) {
	cheap := models.Intent{BudgetMin: f(100), BudgetMax: f(400)}
	mid := models.Intent{BudgetMin: f(600), BudgetMax: f(900)}
	high := models.Intent{BudgetMin: f(1200), BudgetMax: f(1800)}
	premium := models.Intent{BudgetMin: f(2500), BudgetMax: f(4000)}
	open := models.Intent{}

	assert.True(t, BudgetUnder500.Matches(cheap))
	assert.False(t, BudgetUnder500.Matches(mid))
	assert.True(t, Budget500To1k.Matches(mid))
	assert.True(t, Budget1kTo2k.Matches(high))
	assert.True(t, BudgetOver2k.Matches(premium))
	assert.False(t, BudgetOver2k.Matches(open))
	assert.True(t, BudgetAll.Matches(open))

	b, err := ParseBudgetBucket("")
	require.NoError(t, err)
	assert.Equal(t, BudgetAll, b)
	_, err = ParseBudgetBucket("cheap")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}

func TestTimeframeBucketsAndFilter(t *testing.T) {
	in := sampleIntents()

	tf, err := ParseTimeframeBucket("ASAP")
	require.NoError(t, err)
	assert.Len(t, Filter{Budget: BudgetAll, Timeframe: tf}.Apply(in), 1)

	got := Filter{Budget: BudgetOver2k, Timeframe: TimeframeWeek}.Apply(in)
	require.Len(t, got, 0) // intent 3 starts at exactly 2000

	got = Filter{Budget: BudgetAll, Timeframe: TimeframeMonth}.Apply(in)
	require.Len(t, got, 1)
	assert.Equal(t, "2", got[0].ID)

	_, err = ParseTimeframeBucket("year")
	assert.ErrorIs(t, err, models.ErrInvalidArgument)
}
