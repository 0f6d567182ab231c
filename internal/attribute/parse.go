package attribute

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// dateTimeLayouts are tried in order when parsing DateTime values.
var dateTimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02 15:04:05",
	"2006/01/02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
	"02-Jan-2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	time.RFC1123Z,
	time.RFC1123,
	time.ANSIC,
}

var ssnPattern = regexp.MustCompile(`^(\d{3}-\d{2}-\d{4}|\d{9})$`)

// ParseDateTime parses s with the first matching known layout.
func ParseDateTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("%q is not a recognised date time", s)
}

// ParseSSN parses AAA-GG-SSSS or nine digits into an integer in (0, 1e9).
func ParseSSN(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if !ssnPattern.MatchString(s) {
		return 0, fmt.Errorf("%q is not a social security number", s)
	}
	v, err := strconv.ParseInt(strings.ReplaceAll(s, "-", ""), 10, 64)
	if err != nil {
		return 0, err
	}
	if v <= 0 || v >= 1e9 {
		return 0, fmt.Errorf("%q is out of the social security number range", s)
	}
	return v, nil
}

// FormatSSN renders v as AAA-GG-SSSS.
func FormatSSN(v int64) string {
	digits := fmt.Sprintf("%09d", v)
	return digits[:3] + "-" + digits[3:5] + "-" + digits[5:]
}

// ParseInteger accepts integers and integral floats such as "3.0".
func ParseInteger(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseInt(s, 10, 64); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) || f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	return int64(f), nil
}

// ParseFloat accepts any finite float.
func ParseFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	return f, nil
}

// axisValue maps a raw value onto the numeric axis of the kind: the value itself
// for numbers, Unix seconds for datetimes and the rune length for strings.
func axisValue(kind Kind, raw string) (float64, error) {
	switch kind {
	case KindInteger:
		v, err := ParseInteger(raw)
		return float64(v), err
	case KindFloat:
		return ParseFloat(raw)
	case KindString:
		return float64(utf8.RuneCountInString(raw)), nil
	case KindDateTime:
		t, err := ParseDateTime(raw)
		if err != nil {
			return 0, err
		}
		return float64(t.Unix()), nil
	case KindSocialSecurityNumber:
		v, err := ParseSSN(raw)
		return float64(v), err
	default:
		return 0, fmt.Errorf("unsupported kind %d", kind)
	}
}
