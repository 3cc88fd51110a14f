package codec

import (
	"time"
)

const (
	dateLayout   = "2006-01-02"
	secondsInDay = 24 * 60 * 60

	// dayCacheSize covers day ids from 1970-01-01 through the 2140s.
	dayCacheSize = 1 << 16
)

var (
	dateStrings = newStringCache(dayCacheSize)
	dateValues  = newParseCache[int](parseCacheLimit)
)

// FormatDate returns the yyyy-MM-dd text of a day id. Day id 0 formats as "".
func FormatDate(dayID int) string {
	if dayID == 0 {
		return ""
	}
	if dayID > 0 && dayID < dayCacheSize && caching() {
		if s, ok := dateStrings.load(dayID); ok {
			hit()
			return s
		}
		miss()
		s := formatDate(dayID)
		dateStrings.store(dayID, s)
		return s
	}
	return formatDate(dayID)
}

// ParseDate parses yyyy-MM-dd text into a day id. The empty string is 0.
func ParseDate(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	if caching() {
		if v, ok := dateValues.get(s); ok {
			hit()
			return v, nil
		}
		miss()
	}
	t, err := time.ParseInLocation(dateLayout, s, time.UTC)
	if err != nil {
		return 0, &ParseError{Kind: "date", Text: s, Err: err}
	}
	v := DayID(t)
	if caching() {
		dateValues.put(s, v)
	}
	return v, nil
}

// DayID returns the day id of the UTC calendar day containing t.
func DayID(t time.Time) int {
	return int(floorDiv(t.Unix(), secondsInDay))
}

// DayTime returns midnight UTC of the given day id.
func DayTime(dayID int) time.Time {
	return time.Unix(int64(dayID)*secondsInDay, 0).UTC()
}

func formatDate(dayID int) string {
	return DayTime(dayID).Format(dateLayout)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
