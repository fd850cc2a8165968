package builtin

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/lupa/pkg/errors"
	"github.com/turtacn/lupa/pkg/types/entity"
)

// Friday, 5 January 2024.
var fixedNow = time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

func recognize(t *testing.T, kind, text string) []*entity.Entity {
	t.Helper()
	r := NewDefault(WithClock(func() time.Time { return fixedNow }))
	out, err := r.Recognize(context.Background(), text, "en-us", kind)
	require.NoError(t, err)
	return out
}

func field(t *testing.T, e *entity.Entity, key string) any {
	t.Helper()
	m, ok := e.Resolution.Value().(map[string]any)
	require.True(t, ok, "resolution of %s is %T", e, e.Resolution.Value())
	return m[key]
}

func timexOf(t *testing.T, e *entity.Entity) map[string]any {
	t.Helper()
	vals, ok := field(t, e, "values").([]any)
	require.True(t, ok)
	require.Len(t, vals, 1)
	v, ok := vals[0].(map[string]any)
	require.True(t, ok)
	return v
}

func texts(es []*entity.Entity) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = e.Text
	}
	return out
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		ref  string
		kind string
		ok   bool
	}{
		{"number", Number, true},
		{"Email", Email, true},
		{"datetime", DateTime, true},
		{"datetimeV2", DateTime, true},
		{"datetimeV2.date", DateTime, true},
		{"ordinal.relative", Ordinal, true},
		{"color", "", false},
		{"wildcard", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			kind, ok := KindOf(tt.ref)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.kind, kind)
		})
	}
	assert.True(t, IsKind("URL"))
	assert.Len(t, Taxonomy, 17)
}

func TestRecognize_Errors(t *testing.T) {
	r := NewDefault()

	_, err := r.Recognize(context.Background(), "x", "en", "colour")
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBuiltinFailure))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = r.Recognize(ctx, "x", "en", Number)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBuiltinFailure))
}

func TestRecognizerFunc(t *testing.T) {
	called := false
	var r Recognizer = RecognizerFunc(func(_ context.Context, text, locale, kind string) ([]*entity.Entity, error) {
		called = true
		return nil, nil
	})
	_, err := r.Recognize(context.Background(), "", "en", Number)
	assert.NoError(t, err)
	assert.True(t, called)
}

func TestSequenceKinds(t *testing.T) {
	emails := recognize(t, Email, "write to jane.doe@example.com today")
	require.Len(t, emails, 1)
	assert.Equal(t, 9, emails[0].Start)
	assert.Equal(t, 29, emails[0].End)
	assert.Equal(t, entity.BuiltinScore, emails[0].Score)

	urls := recognize(t, URL, "see https://example.com/a?b=1.")
	require.Len(t, urls, 1)
	assert.Equal(t, "https://example.com/a?b=1", urls[0].Text)

	ips := recognize(t, IP, "server 192.168.0.1 and ::1 but not 999.1.1.1")
	assert.Equal(t, []string{"192.168.0.1", "::1"}, texts(ips))
	assert.Equal(t, "ipv6", field(t, ips[1], "type"))

	guids := recognize(t, GUID, "id 123E4567-E89B-12D3-A456-426614174000")
	require.Len(t, guids, 1)
	assert.Equal(t, "123e4567-e89b-12d3-a456-426614174000", field(t, guids[0], "value"))

	assert.Equal(t, []string{"#golang"}, texts(recognize(t, Hashtag, "#golang rocks #1")))
	assert.Equal(t, []string{"@bob_smith"}, texts(recognize(t, Mention, "ping @bob_smith, not a@b.com")))

	phones := recognize(t, PhoneNumber, "call +1 (555) 123-4567 now")
	require.Len(t, phones, 1)
	assert.Equal(t, "+1 (555) 123-4567", phones[0].Text)
	assert.Equal(t, "+15551234567", field(t, phones[0], "value"))
}

func TestNumber(t *testing.T) {
	nums := recognize(t, Number, "I have 3 apples, twenty-one pears and 1,234.5 grams")
	require.Len(t, nums, 3)
	assert.Equal(t, []string{"3", "twenty-one", "1,234.5"}, texts(nums))
	assert.Equal(t, "21", field(t, nums[1], "value"))
	assert.Equal(t, "1234.5", field(t, nums[2], "value"))
	assert.Equal(t, "decimal", field(t, nums[2], "subtype"))

	spelled := recognize(t, Number, "two hundred and forty-five")
	require.Len(t, spelled, 1)
	assert.Equal(t, "245", field(t, spelled[0], "value"))
	assert.Equal(t, "two hundred and forty-five", spelled[0].Text)

	scaled := recognize(t, Number, "5 million")
	require.Len(t, scaled, 1)
	assert.Equal(t, "5000000", field(t, scaled[0], "value"))

	r := NewDefault()
	fr, err := r.Recognize(context.Background(), "vingt et 3", "fr-fr", Number)
	require.NoError(t, err)
	assert.Equal(t, []string{"3"}, texts(fr))
}

func TestOrdinal(t *testing.T) {
	out := recognize(t, Ordinal, "the 2nd and third, next one")
	require.Len(t, out, 3)
	assert.Equal(t, "2", field(t, out[0], "value"))
	assert.Equal(t, "3", field(t, out[1], "value"))
	assert.Equal(t, OrdinalRelative, out[2].Type)
	assert.Equal(t, "current+1", field(t, out[2], "value"))
}

func TestPercentageAndRange(t *testing.T) {
	pct := recognize(t, Percentage, "grew 25% and then ten percent")
	assert.Equal(t, []string{"25%", "ten percent"}, texts(pct))
	assert.Equal(t, "10%", field(t, pct[1], "value"))

	rng := recognize(t, NumberRange, "between 10 and 20")
	require.Len(t, rng, 1)
	assert.Equal(t, 0, rng[0].Start)
	assert.Equal(t, "[10,20]", field(t, rng[0], "value"))

	assert.Equal(t, []string{"from 5 to 7"}, texts(recognize(t, NumberRange, "open from 5 to 7")))
}

func TestUnits(t *testing.T) {
	ages := recognize(t, Age, "my son is 5 years old")
	require.Len(t, ages, 1)
	assert.Equal(t, "5 years old", ages[0].Text)
	assert.Equal(t, "Year", field(t, ages[0], "unit"))

	money := recognize(t, Currency, "$20 and 15 euros")
	require.Len(t, money, 2)
	assert.Equal(t, "$20", money[0].Text)
	assert.Equal(t, "USD", field(t, money[0], "isoCurrency"))
	assert.Equal(t, "15 euros", money[1].Text)
	assert.Equal(t, "EUR", field(t, money[1], "isoCurrency"))

	dims := recognize(t, Dimension, "5 km and 3 feet")
	require.Len(t, dims, 2)
	assert.Equal(t, "Kilometer", field(t, dims[0], "unit"))
	assert.Equal(t, "3 feet", dims[1].Text)

	temps := recognize(t, Temperature, "it is 72 °F, or 20 degrees celsius")
	require.Len(t, temps, 2)
	assert.Equal(t, "F", field(t, temps[0], "unit"))
	assert.Equal(t, "20 degrees celsius", temps[1].Text)
}

func TestBoolean(t *testing.T) {
	out := recognize(t, Boolean, "yes please, no thanks 👍")
	require.Len(t, out, 3)
	assert.Equal(t, true, field(t, out[0], "value"))
	assert.Equal(t, false, field(t, out[1], "value"))
	assert.Equal(t, "👍", out[2].Text)
}

func TestDateTime(t *testing.T) {
	tests := []struct {
		text  string
		typ   string
		span  string
		timex string
		key   string
		value string
	}{
		{"see you tomorrow at 3pm", DateTimeV2, "tomorrow at 3pm", "2024-01-06T15", "value", "2024-01-06 15:00:00"},
		{"due on 2024-03-10", DateV2, "2024-03-10", "2024-03-10", "value", "2024-03-10"},
		{"march 3rd", DateV2, "march 3rd", "XXXX-03-03", "value", "2024-03-03"},
		{"friday", DateV2, "friday", "XXXX-WXX-5", "value", "2024-01-05"},
		{"at 10:30", TimeV2, "10:30", "T10:30", "value", "10:30:00"},
		{"open from 9:00 to 17:00", TimeRangeV2, "from 9:00 to 17:00", "(T09,T17,PT8H)", "start", "09:00:00"},
		{"next week", DateRangeV2, "next week", "2024-W02", "start", "2024-01-08"},
		{"tomorrow morning", DateTimeRangeV2, "tomorrow morning", "2024-01-06TMO", "start", "2024-01-06 08:00:00"},
		{"for 2 hours", DurationV2, "2 hours", "PT2H", "value", "7200"},
		{"in half an hour", DurationV2, "half an hour", "PT0.5H", "value", "1800"},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			out := recognize(t, DateTime, tt.text)
			require.Len(t, out, 1, "got %v", texts(out))
			assert.Equal(t, tt.typ, out[0].Type)
			assert.Equal(t, tt.span, out[0].Text)
			v := timexOf(t, out[0])
			assert.Equal(t, tt.timex, v["timex"])
			assert.Equal(t, tt.value, v[tt.key])
		})
	}
}

func TestDateTime_AgeIsNotDuration(t *testing.T) {
	assert.Empty(t, recognize(t, DateTime, "she is 5 years old"))
}
