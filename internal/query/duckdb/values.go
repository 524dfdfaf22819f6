package duckdb

import (
	"fmt"
	"math"
	"math/big"
	"time"

	duckdb "github.com/marcboeker/go-duckdb/v2"
)

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		normalized[i] = normalizeValue(value)
	}
	return normalized
}

// normalizeValue narrows driver values to nil, int64, float64, string, bool,
// time.Time, []any and map[string]any.
func normalizeValue(value any) any {
	switch typed := value.(type) {
	case nil, int64, float64, string, bool, time.Time:
		return typed
	case []byte:
		return string(typed)
	case int:
		return int64(typed)
	case int8:
		return int64(typed)
	case int16:
		return int64(typed)
	case int32:
		return int64(typed)
	case uint8:
		return int64(typed)
	case uint16:
		return int64(typed)
	case uint32:
		return int64(typed)
	case uint64:
		if typed <= math.MaxInt64 {
			return int64(typed)
		}
		return float64(typed)
	case float32:
		return float64(typed)
	case *big.Int:
		if typed == nil {
			return nil
		}
		if typed.IsInt64() {
			return typed.Int64()
		}
		f, _ := new(big.Float).SetInt(typed).Float64()
		return f
	case duckdb.Decimal:
		return typed.Float64()
	case duckdb.Interval:
		return fmt.Sprintf("%d months %d days %d us", typed.Months, typed.Days, typed.Micros)
	case duckdb.Map:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[fmt.Sprint(normalizeValue(k))] = normalizeValue(v)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, v := range typed {
			out[i] = normalizeValue(v)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(typed))
		for k, v := range typed {
			out[k] = normalizeValue(v)
		}
		return out
	case fmt.Stringer:
		return typed.String()
	default:
		return fmt.Sprint(typed)
	}
}
