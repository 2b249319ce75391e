package tools

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type lookupParams struct {
	CustomerID string `mapstructure:"customer_id"`
	Limit      int    `mapstructure:"limit"`
}

type lookupResult struct {
	Name   string `mapstructure:"customer_name"`
	Orders int    `mapstructure:"order_count"`
}

func TestMemoryRegistry(t *testing.T) {
	echo := NewFunc("echo", func(ctx context.Context, params map[string]any, vars map[string]any) (*Result, error) {
		return &Result{Variables: map[string]any{"echo": params["text"], "caller": vars["caller"]}}, nil
	})
	registry := NewMemoryRegistry(echo)
	require.Equal(t, []string{"echo"}, registry.IDs())

	result, err := registry.Invoke(context.Background(), "echo",
		map[string]any{"text": "hi"}, map[string]any{"caller": "+15550100"})
	require.NoError(t, err)
	require.Equal(t, map[string]any{"echo": "hi", "caller": "+15550100"}, result.Variables)

	_, err = registry.Invoke(context.Background(), "missing", nil, nil)
	require.ErrorIs(t, err, ErrToolNotFound)
}

func TestMemoryRegistryNilResult(t *testing.T) {
	registry := NewMemoryRegistry(NewFunc("noop", func(ctx context.Context, params, vars map[string]any) (*Result, error) {
		return nil, nil
	}))
	result, err := registry.Invoke(context.Background(), "noop", nil, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
}

func TestTyped(t *testing.T) {
	tool := Typed("crm.lookup", func(ctx context.Context, params lookupParams) (lookupResult, error) {
		if params.CustomerID == "" {
			return lookupResult{}, errors.New("customer_id required")
		}
		return lookupResult{Name: "Ann " + params.CustomerID, Orders: params.Limit}, nil
	})
	require.Equal(t, "crm.lookup", tool.ID())

	result, err := tool.Invoke(context.Background(), map[string]any{
		"customer_id": "42",
		"limit":       "3", // weakly typed input
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "Ann 42", result.Variables["customer_name"])
	require.Equal(t, 3, result.Variables["order_count"])

	_, err = tool.Invoke(context.Background(), map[string]any{}, nil)
	require.EqualError(t, err, "customer_id required")
}
