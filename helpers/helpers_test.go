package helpers

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseISO8601Date(t *testing.T) {
	cases := []struct {
		name    string
		dateStr string
		wantErr bool
		want    time.Time
	}{
		{
			name:    "UTC",
			dateStr: "2023-01-02T15:04:05Z",
			want:    time.Date(2023, time.January, 2, 15, 4, 5, 0, time.UTC),
		},
		{
			name:    "offset",
			dateStr: "2023-01-02T15:04:05-07:00",
			want:    time.Date(2023, time.January, 2, 15, 4, 5, 0, time.FixedZone("", -7*3600)),
		},
		{
			name:    "garbage",
			dateStr: "not-a-date",
			wantErr: true,
		},
		{
			name:    "whitespace is trimmed",
			dateStr: "  2023-01-02T15:04:05Z  ",
			want:    time.Date(2023, time.January, 2, 15, 4, 5, 0, time.UTC),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ParseISO8601Date(tc.dateStr)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.True(t, got.Equal(tc.want))
		})
	}
}

func TestParseRetryAfter_Seconds(t *testing.T) {
	now := time.Now()
	headers := http.Header{"Retry-After": []string{"15"}}

	d, ok := ParseRetryAfter(headers, now)

	assert.True(t, ok)
	assert.Equal(t, 15*time.Second, d)
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	when := now.Add(90 * time.Second)
	headers := http.Header{"Retry-After": []string{when.Format(http.TimeFormat)}}

	d, ok := ParseRetryAfter(headers, now)

	assert.True(t, ok)
	assert.Equal(t, 90*time.Second, d)
}

func TestParseRetryAfter_NegativeSecondsRejected(t *testing.T) {
	headers := http.Header{"Retry-After": []string{"-5"}}

	_, ok := ParseRetryAfter(headers, time.Now())

	assert.False(t, ok)
}

func TestParseRetryAfter_Absent(t *testing.T) {
	_, ok := ParseRetryAfter(http.Header{}, time.Now())
	assert.False(t, ok)
}
