package model

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/graph"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type fakeDeleter struct {
	calls []graph.TripleQuery
	err   error
}

func (d *fakeDeleter) DeleteAttachedNodes(_ context.Context, q graph.TripleQuery) (graph.Summary, error) {
	d.calls = append(d.calls, q)
	return graph.Summary{}, d.err
}

func testContext() (*Context, *fakeDeleter) {
	deleter := &fakeDeleter{}
	return &Context{
		Batch:   NewBatch(),
		Deleter: deleter,
		Logger:  testLogger(),
	}, deleter
}

func TestAppendProperties(t *testing.T) {
	t.Run("single value keeps the bare key", func(t *testing.T) {
		props := map[string]any{}
		AppendProperties("male", "gender", props)
		assert.Equal(t, map[string]any{"gender": "male"}, props)
	})

	t.Run("list values get numbered keys from position", func(t *testing.T) {
		props := map[string]any{}
		AppendProperties([]any{"a", "b", "c"}, "alias", props)
		assert.Equal(t, map[string]any{"alias": "a", "alias2": "b", "alias3": "c"}, props)
	})

	t.Run("nil writes nothing", func(t *testing.T) {
		props := map[string]any{}
		AppendProperties(nil, "gender", props)
		assert.Empty(t, props)
	})

	t.Run("nil items keep their position", func(t *testing.T) {
		props := map[string]any{}
		AppendProperties([]any{"a", nil, "c"}, "alias", props)
		assert.Equal(t, map[string]any{"alias": "a", "alias3": "c"}, props)
	})
}

func TestAppendPeriod(t *testing.T) {
	props := map[string]any{}
	AppendPeriod(map[string]any{"start": "2020-01-01", "end": "2021-01-01"}, "period", props)
	assert.Equal(t, map[string]any{"period_start": "2020-01-01", "period_end": "2021-01-01"}, props)

	AppendPeriod(nil, "other", props)
	assert.NotContains(t, props, "other_start")
}

func TestAppendHumanNames(t *testing.T) {
	props := map[string]any{}
	AppendHumanNames([]any{
		map[string]any{
			"use":    "official",
			"text":   "Dr. Jane Doe",
			"family": "Doe",
			"given":  []any{"Jane", "Marie"},
			"prefix": "Dr.",
		},
		map[string]any{"text": "Jane"},
	}, "name", props)

	assert.Equal(t, map[string]any{
		"name":        "Dr. Jane Doe",
		"name_use":    "official",
		"name_family": "Doe",
		"name_given":  "Jane",
		"name_given2": "Marie",
		"name_prefix": "Dr.",
		"name2":       "Jane",
	}, props)
}

func TestAppendAddresses(t *testing.T) {
	props := map[string]any{}
	AppendAddresses([]any{map[string]any{
		"use":        "home",
		"line":       []any{"1 Main St"},
		"city":       "Springfield",
		"postalCode": "12345",
		"period":     map[string]any{"start": "2019"},
	}}, "address", props)

	assert.Equal(t, map[string]any{
		"address_use":          "home",
		"address_line":         "1 Main St",
		"address_city":         "Springfield",
		"address_postalcode":   "12345",
		"address_period_start": "2019",
	}, props)
}

func TestAppendContactPoints(t *testing.T) {
	props := map[string]any{}
	AppendContactPoints([]any{
		map[string]any{"system": "phone", "value": "555-1234", "use": "home"},
		map[string]any{"system": "email", "value": "jane@example.org"},
	}, "telecom", props)

	assert.Equal(t, map[string]any{
		"telecom":         "555-1234",
		"telecom_system":  "phone",
		"telecom_use":     "home",
		"telecom2":        "jane@example.org",
		"telecom2_system": "email",
	}, props)
}

func TestAppendQuantities(t *testing.T) {
	props := map[string]any{}
	AppendQuantities(map[string]any{
		"value": 6.3,
		"unit":  "kg",
		"code":  "kg",
	}, "weight", props)

	require.Equal(t, map[string]any{
		"weight":      6.3,
		"weight_unit": "kg",
		"weight_code": "kg",
	}, props)
}

func TestAppendRange(t *testing.T) {
	props := map[string]any{}
	AppendRange(map[string]any{
		"low":  map[string]any{"value": 1.0, "unit": "d"},
		"high": map[string]any{"value": 9.0, "unit": "d"},
	}, "duration", props)

	assert.Equal(t, 1.0, props["duration_low"])
	assert.Equal(t, 9.0, props["duration_high"])
	assert.Equal(t, "d", props["duration_low_unit"])
}
