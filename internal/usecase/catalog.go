package usecase

import (
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync/atomic"

	"concierge/internal/domain"
	"concierge/internal/infra/config"
)

// BehaviorFactory builds the processing capability for one agent
// definition. Injected to keep the catalog free of adapter imports.
type BehaviorFactory func(def config.AgentDef) (domain.Behavior, error)

// compiledPattern is a detection pattern ready for matching. Regex
// patterns are compiled once at load; literal patterns are lowercased.
type compiledPattern struct {
	src     domain.Pattern
	literal string         // lowercased value for literal patterns
	re      *regexp.Regexp // non-nil for regex patterns
}

// CatalogAgent is one routable entry: the agent definition plus its
// precompiled pattern set and semantic corpus.
type CatalogAgent struct {
	domain.Agent

	patterns []compiledPattern // ordered by descending priority
	semantic []string          // texts feeding the embedding index
}

// SemanticCorpus returns the texts that represent this agent in the
// embedding index: its description plus its semantic pattern values.
func (a *CatalogAgent) SemanticCorpus() []string { return a.semantic }

// catalogSnapshot is one immutable catalog generation.
type catalogSnapshot struct {
	agents []*CatalogAgent // catalog order
	byID   map[string]*CatalogAgent
	byName map[string]*CatalogAgent // lowercased name
}

// Catalog is the in-memory registry of available agents. Loaded once at
// startup; Reload swaps in a whole new generation atomically so readers
// never observe a half-updated agent mid-turn.
type Catalog struct {
	snap    atomic.Pointer[catalogSnapshot]
	factory BehaviorFactory
	logger  *slog.Logger
}

// NewCatalog creates a catalog and loads the initial definitions.
// Draft and archived agents are skipped. A catalog with zero active
// agents is legal at load time; the router reports it per turn.
func NewCatalog(defs []config.AgentDef, factory BehaviorFactory, logger *slog.Logger) (*Catalog, error) {
	c := &Catalog{factory: factory, logger: logger}
	if err := c.Reload(defs); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload replaces the catalog contents atomically.
func (c *Catalog) Reload(defs []config.AgentDef) error {
	snap := &catalogSnapshot{
		byID:   make(map[string]*CatalogAgent, len(defs)),
		byName: make(map[string]*CatalogAgent, len(defs)),
	}

	for _, def := range defs {
		status := def.Status
		if status == "" {
			status = domain.AgentStatusActive
		}
		if status != domain.AgentStatusActive {
			c.logger.Debug("skipping non-active agent", "agent", def.ID, "status", status)
			continue
		}

		behavior, err := c.factory(def)
		if err != nil {
			return fmt.Errorf("build behavior for agent %q: %w", def.ID, err)
		}

		entry := &CatalogAgent{
			Agent: domain.Agent{
				ID:          def.ID,
				Name:        def.Name,
				Description: def.Description,
				Type:        def.Type,
				Status:      status,
				Patterns:    def.Patterns,
				Config:      def.Config,
				Templates:   def.Templates,
				Behavior:    behavior,
			},
		}
		entry.patterns = compilePatterns(def, c.logger)
		entry.semantic = semanticCorpus(def)

		snap.agents = append(snap.agents, entry)
		snap.byID[def.ID] = entry
		snap.byName[strings.ToLower(def.Name)] = entry
	}

	c.snap.Store(snap)
	c.logger.Info("agent catalog loaded", "agents", len(snap.agents))
	return nil
}

// compilePatterns prepares an agent's literal/regex patterns, ordered by
// descending priority. A malformed regex is skipped and logged, never
// fatal.
func compilePatterns(def config.AgentDef, logger *slog.Logger) []compiledPattern {
	var out []compiledPattern
	for _, p := range def.Patterns {
		switch p.Type {
		case domain.PatternLiteral:
			out = append(out, compiledPattern{src: p, literal: strings.ToLower(p.Value)})
		case domain.PatternRegex:
			re, err := regexp.Compile("(?i)" + p.Value)
			if err != nil {
				logger.Warn("skipping malformed regex pattern",
					"agent", def.ID, "pattern", p.Value, "error", err)
				continue
			}
			out = append(out, compiledPattern{src: p, re: re})
		case domain.PatternSemantic:
			// Semantic patterns feed the embedding index, not the matcher.
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].src.Priority > out[j].src.Priority
	})
	return out
}

// semanticCorpus collects the texts representing an agent for vector
// selection.
func semanticCorpus(def config.AgentDef) []string {
	var texts []string
	if def.Description != "" {
		texts = append(texts, def.Description)
	}
	for _, p := range def.Patterns {
		if p.Type == domain.PatternSemantic {
			texts = append(texts, p.Value)
		}
	}
	return texts
}

// Agents returns the active agents in catalog order.
func (c *Catalog) Agents() []*CatalogAgent {
	return c.snap.Load().agents
}

// Len returns the number of active agents.
func (c *Catalog) Len() int {
	return len(c.snap.Load().agents)
}

// ByID looks up an agent by ID.
func (c *Catalog) ByID(id string) (*CatalogAgent, error) {
	if a, ok := c.snap.Load().byID[id]; ok {
		return a, nil
	}
	return nil, domain.NewDomainError("Catalog.ByID", domain.ErrAgentNotFound, id)
}

// ByName looks up an agent by case-insensitive name.
func (c *Catalog) ByName(name string) (*CatalogAgent, error) {
	if a, ok := c.snap.Load().byName[strings.ToLower(name)]; ok {
		return a, nil
	}
	return nil, domain.NewDomainError("Catalog.ByName", domain.ErrAgentNotFound, name)
}

// SemanticCorpora returns agentID → corpus for embedding index builds.
func (c *Catalog) SemanticCorpora() map[string][]string {
	snap := c.snap.Load()
	out := make(map[string][]string, len(snap.agents))
	for _, a := range snap.agents {
		if len(a.semantic) > 0 {
			out[a.ID] = a.semantic
		}
	}
	return out
}
