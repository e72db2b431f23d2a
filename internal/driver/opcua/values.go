// OPCLink - Supervised OPC Connections as a Live Node Tree
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/opclink

package opcua

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrCoerce is returned when a client value cannot be converted to the type
// of a variable.
var ErrCoerce = errors.New("value does not fit the variable type")

// Coerce converts value to the Go type of like, the variable's current
// value. A nil like passes value through unchanged.
func Coerce(value, like any) (any, error) {
	switch like.(type) {
	case nil:
		return value, nil
	case bool:
		return toBool(value)
	case string:
		return toString(value), nil
	case float32:
		f, err := toFloat(value)
		if err != nil {
			return nil, err
		}
		if math.Abs(f) > math.MaxFloat32 {
			return nil, fmt.Errorf("%w: %v overflows float32", ErrCoerce, value)
		}
		return float32(f), nil
	case float64:
		return toFloat(value)
	case int8:
		n, err := toInt(value, math.MinInt8, math.MaxInt8)
		return int8(n), err
	case int16:
		n, err := toInt(value, math.MinInt16, math.MaxInt16)
		return int16(n), err
	case int32:
		n, err := toInt(value, math.MinInt32, math.MaxInt32)
		return int32(n), err
	case int64:
		return toInt(value, math.MinInt64, math.MaxInt64)
	case uint8:
		n, err := toUint(value, math.MaxUint8)
		return uint8(n), err
	case uint16:
		n, err := toUint(value, math.MaxUint16)
		return uint16(n), err
	case uint32:
		n, err := toUint(value, math.MaxUint32)
		return uint32(n), err
	case uint64:
		return toUint(value, math.MaxUint64)
	default:
		return value, nil
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}

func toBool(v any) (bool, error) {
	switch x := v.(type) {
	case bool:
		return x, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, fmt.Errorf("%w: %q is not a boolean", ErrCoerce, x)
		}
		return b, nil
	case float64:
		return x != 0, nil
	case int:
		return x != 0, nil
	default:
		return false, fmt.Errorf("%w: %T is not a boolean", ErrCoerce, v)
	}
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case int32:
		return float64(x), nil
	case uint32:
		return float64(x), nil
	case bool:
		if x {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q is not a number", ErrCoerce, x)
		}
		return f, nil
	case fmt.Stringer:
		return toFloat(x.String())
	default:
		return 0, fmt.Errorf("%w: %T is not a number", ErrCoerce, v)
	}
}

func toInt(v any, lo, hi int64) (int64, error) {
	var n int64
	switch x := v.(type) {
	case int:
		n = int64(x)
	case int64:
		n = x
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			f, ferr := toFloat(x)
			if ferr != nil {
				return 0, ferr
			}
			return floatToInt(f, lo, hi)
		}
		n = i
	default:
		f, err := toFloat(v)
		if err != nil {
			return 0, err
		}
		return floatToInt(f, lo, hi)
	}
	if n < lo || n > hi {
		return 0, fmt.Errorf("%w: %d out of range", ErrCoerce, n)
	}
	return n, nil
}

func floatToInt(f float64, lo, hi int64) (int64, error) {
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%w: %v is not an integer", ErrCoerce, f)
	}
	if f < float64(lo) || f > float64(hi) {
		return 0, fmt.Errorf("%w: %v out of range", ErrCoerce, f)
	}
	return int64(f), nil
}

func toUint(v any, hi uint64) (uint64, error) {
	if s, ok := v.(string); ok {
		u, err := strconv.ParseUint(strings.TrimSpace(s), 10, 64)
		if err == nil {
			if u > hi {
				return 0, fmt.Errorf("%w: %d out of range", ErrCoerce, u)
			}
			return u, nil
		}
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f < 0 || f > float64(hi) {
		return 0, fmt.Errorf("%w: %v out of range", ErrCoerce, f)
	}
	return uint64(f), nil
}
