package recordbin

import (
	"testing"
	"time"
)

func TestDayNumber(t *testing.T) {
	sydney := time.FixedZone("UTC+10", 10*3600)
	c := newTestCodec(t, Options{TimeZone: sydney})

	mar16 := time.Date(2024, 3, 16, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
	tests := []struct {
		name string
		t    time.Time
		want int64
	}{
		{"late UTC evening is next day", time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC), mar16},
		{"local midnight", time.Date(2024, 3, 16, 0, 0, 0, 0, sydney), mar16},
		{"local last minute", time.Date(2024, 3, 16, 23, 59, 0, 0, sydney), mar16},
		{"epoch", time.Date(1970, 1, 1, 0, 0, 0, 0, sydney), 0},
		{"before epoch", time.Date(1969, 12, 31, 12, 0, 0, 0, sydney), -1},
	}
	for _, tt := range tests {
		if got := c.dayNumber(tt.t); got != tt.want {
			t.Errorf("%s: dayNumber = %d, wanted %d", tt.name, got, tt.want)
		}
	}

	if got, want := c.dayTime(mar16), time.Date(2024, 3, 16, 0, 0, 0, 0, sydney); !got.Equal(want) || got.Location() != sydney {
		t.Fatalf("dayTime = %v, wanted %v", got, want)
	}
}

func TestDate_RoundTrip(t *testing.T) {
	sydney := time.FixedZone("UTC+10", 10*3600)
	c := newTestCodec(t, Options{TimeZone: sydney})
	in := time.Date(2024, 3, 15, 23, 30, 0, 0, time.UTC)
	for _, v := range allVersions {
		l := testLayout(t, c, v)
		data := must(l.Serialize(NewRecord("").SetTyped("d", in, Date).Set("at", in).SetTyped("ms", in.UnixMilli(), DateTime)))
		rec := NewRecord("")
		ensure(l.Deserialize(data, rec))

		if got, want := rec.Get("d").(time.Time), time.Date(2024, 3, 16, 0, 0, 0, 0, sydney); !got.Equal(want) {
			t.Errorf("%v: date = %v, wanted %v", v, got, want)
		}
		if got := rec.Get("at").(time.Time); !got.Equal(in) || got.Location() != time.UTC {
			t.Errorf("%v: datetime = %v, wanted %v in UTC", v, got, in)
		}
		if got := rec.Get("ms").(time.Time); !got.Equal(in) {
			t.Errorf("%v: datetime from millis = %v, wanted %v", v, got, in)
		}
	}
}
