package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkerFunc func(context.Context) error

func (f checkerFunc) CheckReadiness(ctx context.Context) error { return f(ctx) }

func TestReadinessGroup(t *testing.T) {
	ok := checkerFunc(func(context.Context) error { return nil })
	down := checkerFunc(func(context.Context) error { return errors.New("redis down") })
	cold := checkerFunc(func(context.Context) error { return errors.New("no pass yet") })

	assert.NoError(t, ReadinessGroup{}.CheckReadiness(context.Background()))
	assert.NoError(t, ReadinessGroup{ok, nil, ok}.CheckReadiness(context.Background()))

	err := ReadinessGroup{ok, down, cold}.CheckReadiness(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis down")
	assert.Contains(t, err.Error(), "no pass yet")
}
