package table

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// timeLayouts are tried in order by ParseTime.
var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"01/02/2006 15:04",
	"02-01-2006",
	"02.01.2006",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
	"20060102",
}

// normalize folds Go's numeric zoo into int64 / float64 and NaN into null.
func normalize(v any) any {
	switch x := v.(type) {
	case nil:
		return nil
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return normalize(float64(x))
	case float64:
		if math.IsNaN(x) {
			return nil
		}
		return x
	case *string:
		if x == nil {
			return nil
		}
		return *x
	default:
		return v
	}
}

// IsNull reports whether v is a null cell value.
func IsNull(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case float64:
		return math.IsNaN(x)
	case float32:
		return math.IsNaN(float64(x))
	}
	return false
}

// ToFloat converts numeric cells and numeric strings to float64.
func ToFloat(v any) (float64, bool) {
	switch x := normalize(v).(type) {
	case int64:
		return float64(x), true
	case float64:
		return x, true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil || math.IsNaN(f) {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

// ToInt converts a cell to int64 when it holds a whole number.
func ToInt(v any) (int64, bool) {
	switch x := normalize(v).(type) {
	case int64:
		return x, true
	case string:
		if n, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return n, true
		}
	}
	f, ok := ToFloat(v)
	if !ok || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return int64(f), true
}

// ToBool converts common truthy/falsy spellings.
func ToBool(v any) (bool, bool) {
	switch x := normalize(v).(type) {
	case bool:
		return x, true
	case int64:
		if x == 0 || x == 1 {
			return x == 1, true
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "t", "yes", "y", "1":
			return true, true
		case "false", "f", "no", "n", "0":
			return false, true
		}
	}
	return false, false
}

// ToString formats a cell for display or CSV output. Null is "".
func ToString(v any) string {
	switch x := normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Hour() == 0 && x.Minute() == 0 && x.Second() == 0 && x.Nanosecond() == 0 {
			return x.Format("2006-01-02")
		}
		return x.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(x)
	}
}

// ParseTime parses s with a fixed list of common layouts.
func ParseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// ToTime converts a cell to a time.
func ToTime(v any) (time.Time, bool) {
	switch x := normalize(v).(type) {
	case time.Time:
		return x, true
	case string:
		return ParseTime(x)
	}
	return time.Time{}, false
}

// Convert coerces v to kind. On failure it returns (nil, false).
func Convert(v any, kind Kind) (any, bool) {
	if IsNull(v) {
		return nil, true
	}
	switch kind {
	case String:
		return ToString(v), true
	case Int:
		if n, ok := ToInt(v); ok {
			return n, true
		}
	case Float:
		if f, ok := ToFloat(v); ok {
			return f, true
		}
	case Bool:
		if b, ok := ToBool(v); ok {
			return b, true
		}
	case Time:
		if t, ok := ToTime(v); ok {
			return t, true
		}
	}
	return nil, false
}

// Equal compares two cells. Nulls are equal to each other, int and float
// compare numerically, and times compare by instant.
func Equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if IsNull(a) || IsNull(b) {
		return IsNull(a) && IsNull(b)
	}
	switch x := a.(type) {
	case int64:
		switch y := b.(type) {
		case int64:
			return x == y
		case float64:
			return float64(x) == y
		}
		return false
	case float64:
		switch y := b.(type) {
		case int64:
			return x == float64(y)
		case float64:
			return x == y
		}
		return false
	case time.Time:
		y, ok := b.(time.Time)
		return ok && x.Equal(y)
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return fmt.Sprintf("%T:%v", a, a) == fmt.Sprintf("%T:%v", b, b)
}

// Less orders two non-null cells: numbers numerically, times chronologically,
// everything else by string form.
func Less(a, b any) bool {
	if fa, ok := ToFloat(a); ok {
		if fb, ok := ToFloat(b); ok {
			return fa < fb
		}
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Before(tb)
		}
	}
	return ToString(a) < ToString(b)
}

// hashKey gives equal cells (per Equal) the same key.
func hashKey(v any) string {
	v = normalize(v)
	switch x := v.(type) {
	case nil:
		return "\x00null"
	case int64:
		return "n:" + strconv.FormatInt(x, 10)
	case float64:
		// Whole floats share the integer form so 1 and 1.0 collide.
		if x == math.Trunc(x) && x >= math.MinInt64 && x < math.MaxInt64 {
			return "n:" + strconv.FormatInt(int64(x), 10)
		}
		return "n:" + strconv.FormatFloat(x, 'g', -1, 64)
	case time.Time:
		return "t:" + strconv.FormatInt(x.UnixNano(), 10)
	case string:
		return "s:" + x
	case bool:
		return "b:" + strconv.FormatBool(x)
	}
	return fmt.Sprintf("%T:%v", v, v)
}
