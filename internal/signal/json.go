package signal

import (
	"encoding/json"
	"fmt"
	"time"
)

// jsonSignal is the persisted form of a signal inside signals_json blobs.
type jsonSignal struct {
	Value      interface{} `json:"value"`
	Confidence float64     `json:"confidence"`
	Source     string      `json:"source"`
	Timestamp  int64       `json:"ts"`
}

// EncodeSignals serializes a merged signal view for storage.
func EncodeSignals(signals map[string]Signal) (string, error) {
	out := make(map[string]jsonSignal, len(signals))
	for key, s := range signals {
		out[key] = jsonSignal{
			Value:      s.Value.Interface(),
			Confidence: s.Confidence,
			Source:     s.Source,
			Timestamp:  s.Timestamp.UnixMilli(),
		}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("failed to encode signals: %w", err)
	}
	return string(data), nil
}

// DecodeSignals restores a stored signal view. Numeric JSON values come back
// as floats; consumers read through AsFloat, which tolerates that.
func DecodeSignals(blob string) (map[string]Signal, error) {
	if blob == "" {
		return map[string]Signal{}, nil
	}
	var raw map[string]jsonSignal
	if err := json.Unmarshal([]byte(blob), &raw); err != nil {
		return nil, fmt.Errorf("failed to decode signals: %w", err)
	}
	out := make(map[string]Signal, len(raw))
	for key, js := range raw {
		out[key] = Signal{
			Key:        key,
			Value:      FromInterface(js.Value),
			Confidence: js.Confidence,
			Source:     js.Source,
			Timestamp:  time.UnixMilli(js.Timestamp),
		}
	}
	return out, nil
}
