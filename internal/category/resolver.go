package category

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-engine/internal/platform"
	apperrors "github.com/spec-kit/ticket-engine/pkg/util"
)

// Definition describes one logical ticket category.
type Definition struct {
	Key        string
	Display    string
	Variations []string
}

// DefaultDefinitions are the built-in categories; config entries override the
// display name and extend the set.
func DefaultDefinitions() map[string]Definition {
	defs := map[string]Definition{
		"support":  {Key: "support", Display: "Support", Variations: []string{"support tickets", "help", "helpdesk"}},
		"replaces": {Key: "replaces", Display: "Replaces", Variations: []string{"replace", "replacements", "replaces tickets"}},
		"billing":  {Key: "billing", Display: "Billing", Variations: []string{"payments", "invoices", "billing tickets"}},
		"report":   {Key: "report", Display: "Reports", Variations: []string{"report", "user reports"}},
	}
	return defs
}

// BuildDefinitions merges configured key:display pairs over the defaults.
func BuildDefinitions(configured map[string]string) map[string]Definition {
	defs := DefaultDefinitions()
	for key, display := range configured {
		def, ok := defs[key]
		if !ok {
			def = Definition{Key: key}
		}
		def.Display = display
		defs[key] = def
	}
	return defs
}

// Resolver maps category keys to container ids. Matching runs in a fixed
// order over containers sorted by creation time (see SortContainers); when
// nothing matches, a new container with a nobody-can-view ACL is created.
type Resolver struct {
	gateway platform.Gateway
	defs    map[string]Definition
	logger  *zap.Logger
}

// NewResolver constructs the resolver.
func NewResolver(gateway platform.Gateway, defs map[string]Definition, logger *zap.Logger) *Resolver {
	if defs == nil {
		defs = DefaultDefinitions()
	}
	return &Resolver{gateway: gateway, defs: defs, logger: logger}
}

// Definition returns the definition for a key, synthesizing one for unknown
// keys so ad hoc categories still resolve.
func (r *Resolver) Definition(key string) Definition {
	key = strings.ToLower(strings.TrimSpace(key))
	if def, ok := r.defs[key]; ok {
		return def
	}
	display := key
	if display != "" {
		display = strings.ToUpper(display[:1]) + display[1:]
	}
	return Definition{Key: key, Display: display}
}

// Resolve returns the container id for a category key, creating the
// container when no existing one matches.
func (r *Resolver) Resolve(ctx context.Context, workspaceID, key string) (string, error) {
	def := r.Definition(key)
	expected := Normalize(def.Display)

	containers, err := r.gateway.ListContainers(ctx, workspaceID)
	if err != nil {
		return "", apperrors.NewCategoryResolution("cannot list containers", err)
	}
	SortContainers(containers)
	candidates := Candidates(containers)

	chain := []Matcher{
		MatchExact,
		MatchSubstring,
		MatchWordOverlap,
		MatchVariations(append([]string{def.Key, def.Display}, def.Variations...)),
	}
	for _, match := range chain {
		if id, ok := match(expected, candidates); ok {
			return id, nil
		}
	}

	id, err := r.gateway.CreateContainer(ctx, workspaceID, def.Display, privateACL())
	if err != nil {
		return "", apperrors.NewCategoryResolution("cannot create container", err)
	}
	r.logger.Info("created category container",
		zap.String("category", def.Key),
		zap.String("container_id", id))
	return id, nil
}

func privateACL() []platform.ACLEntry {
	return []platform.ACLEntry{
		{TargetType: platform.TargetEveryone, Deny: []platform.Permission{platform.PermView}},
	}
}
