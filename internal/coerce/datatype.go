package coerce

import (
	"fmt"
	"strconv"

	"github.com/orangescada/opcua/internal/domain"
)

// OPC UA builtin DataType identifiers relevant to the browse-time
// type mapping. Only the subset Browser needs to classify
// discovered variables is named; anything else falls back to string.
const (
	dataTypeBoolean   = 1
	dataTypeSByte     = 2
	dataTypeByte      = 3
	dataTypeInt16     = 4
	dataTypeUInt16    = 5
	dataTypeInt32     = 6
	dataTypeUInt32    = 7
	dataTypeInt64     = 8
	dataTypeUInt64    = 9
	dataTypeFloat     = 10
	dataTypeDouble    = 11
	dataTypeString    = 12
	dataTypeDateTime  = 13
)

// TagTypeFromDataType maps an OPC UA builtin DataType numeric code to the
// supervisor tag type Browser should record for a newly discovered
// variable.
func TagTypeFromDataType(dataType int) domain.TagType {
	switch dataType {
	case dataTypeBoolean:
		return domain.TagTypeBool
	case dataTypeSByte, dataTypeByte, dataTypeInt16, dataTypeUInt16, dataTypeInt32, dataTypeUInt32, dataTypeInt64, dataTypeUInt64:
		return domain.TagTypeInt
	case dataTypeFloat, dataTypeDouble:
		return domain.TagTypeFloat
	case dataTypeDateTime:
		return domain.TagTypeDatetime
	default:
		return domain.TagTypeString
	}
}

// ToDataType converts a coerced scalar write value into the Go type
// gopcua's ua.NewVariant needs to encode it as the tag's declared OPC
// UA DataType, rather than whatever Go type the value happened to
// arrive as (JSON numbers decode to float64, for instance).
func ToDataType(dataType int, v any) (any, error) {
	switch dataType {
	case dataTypeBoolean:
		return truthy(v), nil
	case dataTypeSByte, dataTypeByte, dataTypeInt16, dataTypeUInt16, dataTypeInt32, dataTypeUInt32, dataTypeInt64, dataTypeUInt64:
		f, err := toFloat64(v)
		if err != nil {
			return nil, err
		}
		switch dataType {
		case dataTypeSByte:
			return int8(f), nil
		case dataTypeByte:
			return byte(f), nil
		case dataTypeInt16:
			return int16(f), nil
		case dataTypeUInt16:
			return uint16(f), nil
		case dataTypeInt32:
			return int32(f), nil
		case dataTypeUInt32:
			return uint32(f), nil
		case dataTypeInt64:
			return int64(f), nil
		default: // dataTypeUInt64
			return uint64(f), nil
		}
	case dataTypeFloat:
		f, err := toFloat64(v)
		return float32(f), err
	case dataTypeDouble:
		return toFloat64(v)
	case dataTypeString:
		return stringOf(v), nil
	case dataTypeDateTime:
		if s, ok := v.(string); ok {
			return ParseWriteDatetime(s)
		}
		return v, nil
	default:
		return v, nil
	}
}

func toFloat64(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int8:
		return float64(t), nil
	case int16:
		return float64(t), nil
	case int32:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case uint:
		return float64(t), nil
	case uint8:
		return float64(t), nil
	case uint16:
		return float64(t), nil
	case uint32:
		return float64(t), nil
	case uint64:
		return float64(t), nil
	case bool:
		if t {
			return 1, nil
		}
		return 0, nil
	case string:
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: cannot convert %q to a number", domain.ErrWriteFail, t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%w: cannot convert %T to a number", domain.ErrWriteFail, v)
	}
}
