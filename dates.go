package recordbin

import "time"

const (
	secondsPerDay = 86400
	millisPerDay  = secondsPerDay * 1000
)

// dayNumber floors t to its calendar day in the database zone and returns
// that day as a count of days since the Unix epoch in UTC. The same calendar
// day encodes identically regardless of the zone t was created in.
func (c *Codec) dayNumber(t time.Time) int64 {
	y, m, d := t.In(c.tz).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).Unix() / secondsPerDay
}

// dayTime returns midnight of the given day in the database zone.
func (c *Codec) dayTime(days int64) time.Time {
	y, m, d := time.Unix(days*secondsPerDay, 0).UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, c.tz)
}

// toTime accepts time values and epoch milliseconds.
func toTime(v any) (time.Time, bool) {
	switch v := v.(type) {
	case time.Time:
		return v, true
	case *time.Time:
		if v == nil {
			return time.Time{}, false
		}
		return *v, true
	case int64:
		return time.UnixMilli(v), true
	case int:
		return time.UnixMilli(int64(v)), true
	default:
		return time.Time{}, false
	}
}

func (c *Codec) formatDate(t time.Time) string {
	return t.In(c.tz).Format(c.dateFormat)
}

func (c *Codec) formatDateTime(t time.Time) string {
	return t.In(c.tz).Format(c.dateTimeFormat)
}
