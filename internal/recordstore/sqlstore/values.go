package sqlstore

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/mobilsoft/backoffice/internal/query"
)

// present converts a scanned value to the ERP wire shape: unset values become
// false, booleans are real booleans and JSON columns are decoded.
func present(col Column, v any) any {
	if v == nil {
		return false
	}
	switch col.Type {
	case Bool:
		switch x := v.(type) {
		case bool:
			return x
		case int64:
			return x != 0
		}
	case Int, Ref:
		return asInt(v)
	case Float:
		return asFloat(v)
	case Date:
		if t, ok := v.(time.Time); ok {
			return t.Format(query.DateLayout)
		}
	case DateTime:
		if t, ok := v.(time.Time); ok {
			return t.UTC().Format(query.DateTimeLayout)
		}
	case JSON:
		s, ok := v.(string)
		if !ok {
			return v
		}
		if s == "" {
			return false
		}
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return false
		}
		return decoded
	}
	return v
}

// store converts a written value to its column representation.
func store(col Column, v any) (any, error) {
	if b, ok := v.(bool); ok && !b && col.Type != Bool {
		v = nil
	}
	if v == nil {
		if col.Type == Bool {
			return false, nil
		}
		return nil, nil
	}
	switch col.Type {
	case Bool:
		switch x := v.(type) {
		case bool:
			return x, nil
		case int, int64, float64:
			return asFloat(x) != 0, nil
		}
	case Int:
		if !isNumber(v) {
			break
		}
		return asInt(v), nil
	case Ref:
		if pair, ok := v.([]any); ok && len(pair) > 0 {
			v = pair[0]
		}
		if !isNumber(v) {
			break
		}
		id := asInt(v)
		if id == 0 {
			return nil, nil
		}
		return id, nil
	case Float:
		if !isNumber(v) {
			break
		}
		return asFloat(v), nil
	case Text, Date, DateTime:
		switch x := v.(type) {
		case string:
			if x == "" && col.Type != Text {
				return nil, nil
			}
			return x, nil
		case time.Time:
			if col.Type == Date {
				return x.Format(query.DateLayout), nil
			}
			return x.UTC().Format(query.DateTimeLayout), nil
		}
	case JSON:
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	}
	return nil, fmt.Errorf("value %v (%T) does not fit column type %d", v, v, col.Type)
}

func isNumber(v any) bool {
	switch v.(type) {
	case int, int32, int64, float32, float64:
		return true
	}
	return false
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case float32:
		return int64(x)
	case float64:
		return int64(math.Round(x))
	case string:
		n, _ := strconv.ParseInt(x, 10, 64)
		return n
	}
	return 0
}

func asFloat(v any) float64 {
	switch x := v.(type) {
	case int:
		return float64(x)
	case int32:
		return float64(x)
	case int64:
		return float64(x)
	case float32:
		return float64(x)
	case float64:
		return x
	case string:
		f, _ := strconv.ParseFloat(x, 64)
		return f
	}
	return 0
}
