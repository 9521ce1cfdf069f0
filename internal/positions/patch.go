package positions

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	storemodel "pairlab/internal/store/model"
	"pairlab/internal/types"
)

var patchNumbers = []string{"quantity_a", "quantity_b", "entry_price_a", "entry_price_b"}

// parsePatch 只接受 notes/status 与数量、开仓价的修改。
func parsePatch(raw []byte) (map[string]interface{}, error) {
	if !gjson.ValidBytes(raw) {
		return nil, fmt.Errorf("%w: body 不是合法 JSON", types.ErrInvalidConfig)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return nil, fmt.Errorf("%w: body 必须是 JSON 对象", types.ErrInvalidConfig)
	}
	updates := make(map[string]interface{})
	if v := doc.Get("notes"); v.Exists() {
		if v.Type != gjson.String && v.Type != gjson.Null {
			return nil, fmt.Errorf("%w: notes 必须是字符串", types.ErrInvalidConfig)
		}
		updates["notes"] = strings.TrimSpace(v.String())
	}
	if v := doc.Get("status"); v.Exists() {
		st := storemodel.PositionStatus(strings.ToLower(strings.TrimSpace(v.String())))
		if st != storemodel.PositionOpen && st != storemodel.PositionClosed {
			return nil, fmt.Errorf("%w: status must be open or closed", types.ErrInvalidConfig)
		}
		updates["status"] = st
	}
	for _, key := range patchNumbers {
		v := doc.Get(key)
		if !v.Exists() {
			continue
		}
		if v.Type != gjson.Number || !(v.Float() > 0) {
			return nil, fmt.Errorf("%w: %s must be a positive number", types.ErrInvalidConfig, key)
		}
		updates[key] = v.Float()
	}
	if len(updates) == 0 {
		return nil, fmt.Errorf("%w: 没有可更新的字段", types.ErrInvalidConfig)
	}
	return updates, nil
}
