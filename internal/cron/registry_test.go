package cron

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedJob string

func (n namedJob) Name() string              { return string(n) }
func (n namedJob) Run(context.Context) error { return nil }

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	registry := NewRegistry(namedJob("profile-repair"), nil)
	registry.Register(nil)
	registry.Register(namedJob("audit-retention"))

	jobs := registry.Jobs()
	require.Len(t, jobs, 2)
	assert.Equal(t, "profile-repair", jobs[0].Name())
	assert.Equal(t, "audit-retention", jobs[1].Name())

	jobs[0] = nil
	assert.NotNil(t, registry.Jobs()[0], "Jobs must return a copy")
}
