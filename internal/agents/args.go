// Package agents implements the capability handlers registered with the
// orchestrator. Each agent validates its own arguments: the orchestrator
// hands over whatever the templates resolved to, and a missing or malformed
// argument must fail with an error naming the key.
package agents

import (
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// ErrMissingArg reports a required argument a caller did not supply.
type ErrMissingArg struct {
	Capability string
	Key        string
}

func (e *ErrMissingArg) Error() string {
	return fmt.Sprintf("agents: %s requires argument %q", e.Capability, e.Key)
}

func stringArg(capability string, args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return "", &ErrMissingArg{Capability: capability, Key: key}
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("agents: %s argument %q must be a non-empty string, got %T", capability, key, v)
	}
	return s, nil
}

func listArg(capability string, args map[string]any, key string) ([]any, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return nil, &ErrMissingArg{Capability: capability, Key: key}
	}
	l, ok := v.([]any)
	if !ok {
		return nil, fmt.Errorf("agents: %s argument %q must be a list, got %T", capability, key, v)
	}
	return l, nil
}

func numberArg(capability string, args map[string]any, key string) (float64, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return 0, &ErrMissingArg{Capability: capability, Key: key}
	}
	f, err := toFloat(v)
	if err != nil {
		return 0, fmt.Errorf("agents: %s argument %q: %w", capability, key, err)
	}
	return f, nil
}

func optionalNumberArg(capability string, args map[string]any, key string, def float64) (float64, error) {
	if v, ok := args[key]; ok && v != nil {
		f, err := toFloat(v)
		if err != nil {
			return 0, fmt.Errorf("agents: %s argument %q: %w", capability, key, err)
		}
		return f, nil
	}
	return def, nil
}

func optionalDateArg(capability string, args map[string]any, key string) (time.Time, error) {
	v, ok := args[key]
	if !ok || v == nil {
		return time.Time{}, nil
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("agents: %s argument %q must be a YYYY-MM-DD string, got %T", capability, key, v)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("agents: %s argument %q: %w", capability, key, err)
	}
	return t, nil
}

func toFloat(v any) (float64, error) {
	switch t := v.(type) {
	case float64:
		return t, nil
	case float32:
		return float64(t), nil
	case int:
		return float64(t), nil
	case int64:
		return float64(t), nil
	case string:
		// CLI inputs arrive as strings.
		f, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, fmt.Errorf("expected a number, got %q", t)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// toDecimal accepts the value shapes that flow through step results: exact
// decimal strings, YAML numbers, or an already-typed decimal.
func toDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case string:
		return decimal.NewFromString(t)
	case float64:
		return decimal.NewFromFloat(t), nil
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int64:
		return decimal.NewFromInt(t), nil
	default:
		return decimal.Zero, fmt.Errorf("expected a decimal value, got %T", v)
	}
}

func decimalField(capability string, m map[string]any, key string) (decimal.Decimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.Zero, fmt.Errorf("agents: %s element missing field %q", capability, key)
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("agents: %s field %q: %w", capability, key, err)
	}
	return d, nil
}

func optionalDecimalField(capability string, m map[string]any, key string) (decimal.Decimal, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return decimal.Zero, nil
	}
	d, err := toDecimal(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("agents: %s field %q: %w", capability, key, err)
	}
	return d, nil
}

func dateField(capability string, m map[string]any, key string) (time.Time, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return time.Time{}, fmt.Errorf("agents: %s element missing field %q", capability, key)
	}
	s, ok := v.(string)
	if !ok {
		return time.Time{}, fmt.Errorf("agents: %s field %q must be a YYYY-MM-DD string, got %T", capability, key, v)
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, fmt.Errorf("agents: %s field %q: %w", capability, key, err)
	}
	return t, nil
}
