package category_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/category"
	"github.com/spec-kit/ticket-engine/internal/platform"
	"github.com/spec-kit/ticket-engine/internal/platform/platformtest"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

func TestSortContainersDeterministic(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	containers := []platform.Container{
		{ID: "c", CreatedAt: base.Add(time.Hour)},
		{ID: "b", CreatedAt: base},
		{ID: "a", CreatedAt: base},
	}
	category.SortContainers(containers)
	assert.Equal(t, "a", containers[0].ID, "equal timestamps break ties by id")
	assert.Equal(t, "b", containers[1].ID)
	assert.Equal(t, "c", containers[2].ID)
}

func TestMatcherChain(t *testing.T) {
	candidates := []category.Candidate{
		{ID: "c1", Norm: "support"},
		{ID: "c2", Norm: "billing tickets"},
		{ID: "c3", Norm: "replacements"},
	}

	id, ok := category.MatchExact("support", candidates)
	require.True(t, ok)
	assert.Equal(t, "c1", id)

	_, ok = category.MatchExact("billing", candidates)
	assert.False(t, ok)

	id, ok = category.MatchSubstring("billing", candidates)
	require.True(t, ok)
	assert.Equal(t, "c2", id)

	// "replaces" and "replacements" share the "repl" prefix.
	id, ok = category.MatchWordOverlap("replaces", candidates)
	require.True(t, ok)
	assert.Equal(t, "c3", id)

	match := category.MatchVariations([]string{"Replacements", "replace"})
	id, ok = match("anything", candidates)
	require.True(t, ok)
	assert.Equal(t, "c3", id)

	_, ok = category.MatchVariations(nil)("anything", candidates)
	assert.False(t, ok)
}

func TestResolveMatchesDecoratedContainer(t *testing.T) {
	fake := platformtest.NewFakeGateway()
	fake.AddContainer("🎫 Support")
	id := fake.AddContainer("💳 Billing")

	resolver := category.NewResolver(fake, nil, zap.NewNop())
	got, err := resolver.Resolve(context.Background(), "ws-1", "billing")
	require.NoError(t, err)
	assert.Equal(t, id, got)
}

func TestResolveCreatesPrivateContainer(t *testing.T) {
	fake := platformtest.NewFakeGateway()
	resolver := category.NewResolver(fake, nil, zap.NewNop())

	got, err := resolver.Resolve(context.Background(), "ws-1", "report")
	require.NoError(t, err)
	assert.NotEmpty(t, got)

	// Resolving again finds the container it just created.
	again, err := resolver.Resolve(context.Background(), "ws-1", "report")
	require.NoError(t, err)
	assert.Equal(t, got, again)
}

func TestResolveCreateFailure(t *testing.T) {
	fake := platformtest.NewFakeGateway()
	fake.FailCreateContainer = errors.New("bridge down")

	resolver := category.NewResolver(fake, nil, zap.NewNop())
	_, err := resolver.Resolve(context.Background(), "ws-1", "support")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeCategoryResolution))
}

func TestDefinitionSynthesizesUnknownKey(t *testing.T) {
	resolver := category.NewResolver(platformtest.NewFakeGateway(), nil, zap.NewNop())

	def := resolver.Definition("replaces")
	assert.Equal(t, "Replaces", def.Display)

	def = resolver.Definition("  Custom ")
	assert.Equal(t, "custom", def.Key)
	assert.Equal(t, "Custom", def.Display)
}

func TestBuildDefinitionsOverridesDisplay(t *testing.T) {
	defs := category.BuildDefinitions(map[string]string{
		"support": "Support Desk",
		"vip":     "VIP Lounge",
	})
	assert.Equal(t, "Support Desk", defs["support"].Display)
	assert.NotEmpty(t, defs["support"].Variations, "defaults keep their variations")
	assert.Equal(t, "VIP Lounge", defs["vip"].Display)
}
