package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"concierge/internal/domain"
	"concierge/internal/infra/config"
	"concierge/internal/infra/logger"
)

func TestCatalogSkipsNonActiveAgents(t *testing.T) {
	billing := agentDef("billing", "Billing Agent")
	draft := agentDef("draft", "Draft Agent")
	draft.Status = domain.AgentStatusDraft
	archived := agentDef("old", "Old Agent")
	archived.Status = domain.AgentStatusArchived

	cat, _ := testCatalog(billing, draft, archived)

	assert.Equal(t, 1, cat.Len())
	_, err := cat.ByID("draft")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
	_, err = cat.ByID("old")
	assert.ErrorIs(t, err, domain.ErrAgentNotFound)
}

func TestCatalogDefaultsStatusToActive(t *testing.T) {
	def := agentDef("billing", "Billing Agent")
	def.Status = ""
	cat, _ := testCatalog(def)

	a, err := cat.ByID("billing")
	require.NoError(t, err)
	assert.Equal(t, domain.AgentStatusActive, a.Status)
}

func TestCatalogByNameIsCaseInsensitive(t *testing.T) {
	cat, _ := testCatalog(agentDef("general", "General Conversation Agent"))

	a, err := cat.ByName("general conversation agent")
	require.NoError(t, err)
	assert.Equal(t, "general", a.ID)
}

func TestCatalogOrdersPatternsByPriority(t *testing.T) {
	cat, _ := testCatalog(agentDef("billing", "Billing Agent",
		domain.Pattern{Type: domain.PatternLiteral, Value: "invoice", Priority: 1},
		domain.Pattern{Type: domain.PatternLiteral, Value: "refund", Priority: 10},
		domain.Pattern{Type: domain.PatternLiteral, Value: "charge", Priority: 5},
	))

	a, err := cat.ByID("billing")
	require.NoError(t, err)
	require.Len(t, a.patterns, 3)
	assert.Equal(t, "refund", a.patterns[0].src.Value)
	assert.Equal(t, "charge", a.patterns[1].src.Value)
	assert.Equal(t, "invoice", a.patterns[2].src.Value)
}

func TestCatalogSkipsMalformedRegex(t *testing.T) {
	cat, _ := testCatalog(agentDef("billing", "Billing Agent",
		domain.Pattern{Type: domain.PatternRegex, Value: "refund(s)?"},
		domain.Pattern{Type: domain.PatternRegex, Value: "(["},
	))

	a, err := cat.ByID("billing")
	require.NoError(t, err)
	assert.Len(t, a.patterns, 1)
}

func TestCatalogSemanticCorpora(t *testing.T) {
	cat, _ := testCatalog(
		agentDef("billing", "Billing Agent",
			domain.Pattern{Type: domain.PatternSemantic, Value: "questions about invoices and refunds"}),
		agentDef("general", "General Conversation Agent"),
	)

	corpora := cat.SemanticCorpora()
	require.Contains(t, corpora, "billing")
	assert.Contains(t, corpora["billing"], "questions about invoices and refunds")
	// Description-only agents still contribute their description.
	assert.Contains(t, corpora, "general")
}

func TestCatalogReloadSwapsAtomically(t *testing.T) {
	cat, _ := testCatalog(agentDef("billing", "Billing Agent"))
	require.Equal(t, 1, cat.Len())

	err := cat.Reload([]config.AgentDef{
		agentDef("tech", "Tech Support Agent"),
		agentDef("general", "General Conversation Agent"),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, cat.Len())
	_, err = cat.ByID("billing")
	assert.Error(t, err)
}

func TestCatalogBehaviorFactoryFailureIsFatal(t *testing.T) {
	_, err := NewCatalog([]config.AgentDef{agentDef("billing", "Billing Agent")},
		func(config.AgentDef) (domain.Behavior, error) {
			return nil, assert.AnError
		}, logger.Discard())
	require.Error(t, err)
}
