package alerts

import (
	"fmt"

	"github.com/tidwall/gjson"

	"pairlab/internal/types"
)

type optionalFloat struct {
	set   bool
	value *float64
}

func (o optionalFloat) sqlValue() interface{} {
	if o.value == nil {
		return nil
	}
	return *o.value
}

type alertPatch struct {
	high    optionalFloat
	low     optionalFloat
	enabled *bool
}

func (p alertPatch) updates() map[string]interface{} {
	out := make(map[string]interface{}, 3)
	if p.high.set {
		out["threshold_high"] = p.high.sqlValue()
	}
	if p.low.set {
		out["threshold_low"] = p.low.sqlValue()
	}
	if p.enabled != nil {
		out["enabled"] = *p.enabled
	}
	return out
}

// parsePatch 解析 {"threshold_high":2.5,"threshold_low":null,"enabled":false}，未出现的字段保持不变。
func parsePatch(raw []byte) (alertPatch, error) {
	var p alertPatch
	if !gjson.ValidBytes(raw) {
		return p, fmt.Errorf("%w: body 不是合法 JSON", types.ErrInvalidConfig)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return p, fmt.Errorf("%w: body 必须是 JSON 对象", types.ErrInvalidConfig)
	}
	var err error
	if p.high, err = floatField(doc, "threshold_high"); err != nil {
		return p, err
	}
	if p.low, err = floatField(doc, "threshold_low"); err != nil {
		return p, err
	}
	if v := doc.Get("enabled"); v.Exists() {
		if v.Type != gjson.True && v.Type != gjson.False {
			return p, fmt.Errorf("%w: enabled 必须是布尔值", types.ErrInvalidConfig)
		}
		enabled := v.Bool()
		p.enabled = &enabled
	}
	return p, nil
}

func floatField(doc gjson.Result, key string) (optionalFloat, error) {
	v := doc.Get(key)
	switch {
	case !v.Exists():
		return optionalFloat{}, nil
	case v.Type == gjson.Null:
		return optionalFloat{set: true}, nil
	case v.Type == gjson.Number:
		f := v.Float()
		return optionalFloat{set: true, value: &f}, nil
	default:
		return optionalFloat{}, fmt.Errorf("%w: %s 必须是数字或 null", types.ErrInvalidConfig, key)
	}
}
