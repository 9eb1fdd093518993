package collector

import (
	"encoding/json"
	"fmt"
	"strings"

	"iot-collector/internal/domain"
)

// ValueKind 网关响应 JSON 值的标记类型
type ValueKind int

const (
	KindNull ValueKind = iota
	KindBool
	KindNumber
	KindString
	KindObject
	KindArray
)

// PayloadValue 网关响应中单个键的标记值。
// 数值、对象和数组保留原始 JSON 文本作为规范字符串编码。
type PayloadValue struct {
	Kind ValueKind
	raw  json.RawMessage
	b    bool
	s    string
}

// parsePayload 把响应体解析成扁平 JSON 对象的标记值表。
// 非对象或空对象返回错误。
func parsePayload(body []byte) (map[string]PayloadValue, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("payload is not a JSON object: %w", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("payload is empty")
	}

	out := make(map[string]PayloadValue, len(fields))
	for key, raw := range fields {
		pv, err := classifyValue(raw)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", key, err)
		}
		out[key] = pv
	}
	return out, nil
}

func classifyValue(raw json.RawMessage) (PayloadValue, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" {
		return PayloadValue{}, fmt.Errorf("empty value")
	}

	switch trimmed[0] {
	case 'n':
		return PayloadValue{Kind: KindNull}, nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(raw, &b); err != nil {
			return PayloadValue{}, err
		}
		return PayloadValue{Kind: KindBool, b: b}, nil
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return PayloadValue{}, err
		}
		return PayloadValue{Kind: KindString, s: s}, nil
	case '{':
		return PayloadValue{Kind: KindObject, raw: raw}, nil
	case '[':
		return PayloadValue{Kind: KindArray, raw: raw}, nil
	default:
		// JSON 只剩数字一种可能
		return PayloadValue{Kind: KindNumber, raw: raw}, nil
	}
}

// String 规范字符串编码：数字/对象/数组取原始 JSON 文本，
// 布尔取 "true"/"false"，null 取空串。
func (v PayloadValue) String() string {
	switch v.Kind {
	case KindNull:
		return ""
	case KindBool:
		if v.b {
			return "true"
		}
		return "false"
	case KindString:
		return v.s
	default:
		return strings.TrimSpace(string(v.raw))
	}
}

// DataType 自动建档时的类型推断。null 值无类型信息，按字符串处理。
func (v PayloadValue) DataType() domain.DataPointType {
	switch v.Kind {
	case KindBool:
		return domain.DataTypeBoolean
	case KindNumber:
		return domain.DataTypeNumeric
	case KindObject, KindArray:
		return domain.DataTypeJSON
	default:
		return domain.DataTypeString
	}
}
