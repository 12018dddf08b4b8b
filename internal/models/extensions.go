package models

import (
	"encoding/json"
	"fmt"
)

// Extensions — карта расширений с произвольными метаданными, прикрепляемыми
// к лицензиям, сессиям и записям аудита. Значениями могут быть только
// скаляры JSON, вложенные объекты/массивы JSON или json.RawMessage.
type Extensions map[string]any

// Validate проверяет, что все значения карты представимы в JSON.
func (e Extensions) Validate() error {
	for k, v := range e {
		if err := validateExtensionValue(v); err != nil {
			return fmt.Errorf("extension %q: %w", k, err)
		}
	}
	return nil
}

// Clone возвращает поверхностную копию карты.
func (e Extensions) Clone() Extensions {
	if e == nil {
		return nil
	}
	out := make(Extensions, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

func validateExtensionValue(v any) error {
	switch val := v.(type) {
	case nil, string, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return nil
	case json.RawMessage:
		if !json.Valid(val) {
			return fmt.Errorf("invalid raw json")
		}
		return nil
	case map[string]any:
		for k, inner := range val {
			if err := validateExtensionValue(inner); err != nil {
				return fmt.Errorf("%s: %w", k, err)
			}
		}
		return nil
	case []any:
		for i, inner := range val {
			if err := validateExtensionValue(inner); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported value type %T", v)
	}
}
