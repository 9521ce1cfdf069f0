package preset

// paramSchema 约束预设里可以出现的回测参数及其取值范围。
const paramSchema = `{
  "type": "object",
  "additionalProperties": false,
  "properties": {
    "lookback_days": {"type": "integer", "minimum": 50, "maximum": 1000},
    "entry_threshold": {"type": "number", "exclusiveMinimum": 0, "maximum": 5},
    "initial_capital": {"type": "number", "exclusiveMinimum": 0},
    "position_size_pct": {"type": "number", "exclusiveMinimum": 0, "maximum": 100},
    "transaction_cost_pct": {"type": "number", "minimum": 0, "maximum": 0.05},
    "stop_loss": {
      "type": "object",
      "additionalProperties": false,
      "required": ["type"],
      "properties": {
        "type": {"enum": ["none", "zscore", "percent", "atr"]},
        "value": {"type": "number", "minimum": 0}
      }
    },
    "take_profit": {
      "type": "object",
      "additionalProperties": false,
      "required": ["type"],
      "properties": {
        "type": {"enum": ["zscore", "percent", "atr"]},
        "value": {"type": "number"}
      }
    },
    "rebalancing": {
      "type": "object",
      "additionalProperties": false,
      "properties": {
        "enabled": {"type": "boolean"},
        "frequency_days": {"type": "integer", "minimum": 1, "maximum": 30},
        "drift_threshold": {"type": "number", "minimum": 0.01, "maximum": 0.5}
      }
    }
  }
}`
