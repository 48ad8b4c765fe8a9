package pool

import (
	"math"
	"strconv"
	"time"

	"github.com/araddon/dateparse"
)

// Fallback layouts, tried in order after the byte fast path fails.
var fallbackLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006/01/02 15:04:05",
	"02/01/2006 15:04:05",
}

// ErrInvalidTimestamp indicates a timestamp field that no parser accepted.
var ErrInvalidTimestamp = &TimestampError{"invalid timestamp format"}

// TimestampError represents a timestamp parsing error.
type TimestampError struct {
	msg string
}

func (e *TimestampError) Error() string {
	return e.msg
}

// ParseTimestamp parses a CSV timestamp field to nanoseconds since epoch.
//
// "YYYY-MM-DD[ T]hh:mm:ss[.fff][Z|±hh:mm]" is decoded with byte arithmetic;
// a field without an offset is read in loc. Integer fields are epoch time
// whose unit follows the digit count: up to 11 digits seconds, 14 milliseconds,
// 17 microseconds, otherwise nanoseconds.
// Other layouts go through a list of known formats and then dateparse.
func ParseTimestamp(b []byte, loc *time.Location) (int64, error) {
	if loc == nil {
		loc = time.UTC
	}
	if len(b) == 0 {
		return 0, ErrInvalidTimestamp
	}

	if len(b) >= 10 && b[4] == '-' && b[7] == '-' {
		if ns, ok := parseISO(b, loc); ok {
			return ns, nil
		}
	}

	if allDigits(b) {
		return parseEpoch(b)
	}

	s := BytesToString(b)
	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t.UnixNano(), nil
		}
	}

	// Last resort for free-form dates such as "12 Feb 2006, 19:17"
	if t, err := dateparse.ParseIn(string(b), loc); err == nil {
		return t.UnixNano(), nil
	}
	return 0, ErrInvalidTimestamp
}

func parseEpoch(b []byte) (int64, error) {
	v, err := strconv.ParseInt(BytesToString(b), 10, 64)
	if err != nil {
		return 0, ErrInvalidTimestamp
	}

	n := len(b)
	if b[0] == '-' {
		n--
	}
	var unit int64
	switch {
	case n <= 11:
		unit = int64(time.Second)
	case n <= 14:
		unit = int64(time.Millisecond)
	case n <= 17:
		unit = int64(time.Microsecond)
	default:
		return v, nil
	}
	if v > math.MaxInt64/unit || v < math.MinInt64/unit {
		return 0, ErrInvalidTimestamp
	}
	return v * unit, nil
}

func parseISO(b []byte, loc *time.Location) (int64, bool) {
	year, ok1 := digits(b[0:4])
	month, ok2 := digits(b[5:7])
	day, ok3 := digits(b[8:10])
	if !ok1 || !ok2 || !ok3 || month < 1 || month > 12 || day < 1 || day > daysIn(month, year) {
		return 0, false
	}

	var hour, minute, second, nsec int
	rest := b[10:]
	if len(rest) > 0 {
		if (rest[0] != ' ' && rest[0] != 'T') || len(rest) < 9 || rest[3] != ':' || rest[6] != ':' {
			return 0, false
		}
		var okH, okM, okS bool
		hour, okH = digits(rest[1:3])
		minute, okM = digits(rest[4:6])
		second, okS = digits(rest[7:9])
		if !okH || !okM || !okS || hour > 23 || minute > 59 || second > 60 {
			return 0, false
		}
		rest = rest[9:]

		if len(rest) > 0 && rest[0] == '.' {
			end := 1
			for end < len(rest) && rest[end] >= '0' && rest[end] <= '9' {
				end++
			}
			nsec = fraction(rest[1:end])
			rest = rest[end:]
		}

		switch {
		case len(rest) == 0:
		case len(rest) == 1 && rest[0] == 'Z':
			loc = time.UTC
		case rest[0] == '+' || rest[0] == '-':
			offset, ok := zoneOffset(rest)
			if !ok {
				return 0, false
			}
			loc = time.FixedZone("", offset)
		default:
			return 0, false
		}
	}

	return time.Date(year, time.Month(month), day, hour, minute, second, nsec, loc).UnixNano(), true
}

func daysIn(month, year int) int {
	return time.Date(year, time.Month(month)+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// zoneOffset decodes "+hh:mm", "+hhmm" or "+hh" to seconds east of UTC.
func zoneOffset(b []byte) (int, bool) {
	var hours, mins int
	var ok bool
	switch len(b) {
	case 3:
		hours, ok = digits(b[1:3])
	case 5:
		var okM bool
		hours, ok = digits(b[1:3])
		mins, okM = digits(b[3:5])
		ok = ok && okM
	case 6:
		var okM bool
		hours, ok = digits(b[1:3])
		mins, okM = digits(b[4:6])
		ok = ok && okM && b[3] == ':'
	}
	if !ok {
		return 0, false
	}
	offset := hours*3600 + mins*60
	if b[0] == '-' {
		offset = -offset
	}
	return offset, true
}

func digits(b []byte) (int, bool) {
	n := 0
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, false
		}
		n = n*10 + int(c-'0')
	}
	return n, len(b) > 0
}

// fraction scales up to nine fractional digits to nanoseconds.
func fraction(b []byte) int {
	result := 0
	mul := 100_000_000
	for i := 0; i < len(b) && i < 9; i++ {
		result += int(b[i]-'0') * mul
		mul /= 10
	}
	return result
}

func allDigits(b []byte) bool {
	for i, c := range b {
		if c == '-' && i == 0 && len(b) > 1 {
			continue
		}
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
