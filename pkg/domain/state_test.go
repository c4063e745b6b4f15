package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergeDomain_NestedAndFlat(t *testing.T) {
	s := NewSharedState(map[string]any{
		"goal": "fix build",
		"agent_economy": map[string]any{
			"budget": 10,
			"spent":  2,
		},
	})

	s.Update(func(st *SharedState) {
		st.MergeDomain(map[string]any{
			"goal":          "ship",
			"agent_economy": map[string]any{"spent": 5},
			"token_credits": map[string]any{"coder": 100},
		})
	})

	c := s.Clone()
	assert.Equal(t, "ship", c.Domain["goal"])
	assert.Equal(t, map[string]any{"budget": 10, "spent": 5}, c.Domain["agent_economy"])
	assert.Equal(t, map[string]any{"coder": 100}, c.Domain["token_credits"])
}

func TestMergeDomain_DoesNotAliasSource(t *testing.T) {
	nested := map[string]any{"spent": 1}
	s := NewSharedState(map[string]any{"agent_economy": map[string]any{"budget": 10}})

	s.Update(func(st *SharedState) { st.MergeDomain(map[string]any{"agent_economy": nested}) })
	nested["spent"] = 99

	v, _ := s.Value("agent_economy")
	assert.Equal(t, 1, v.(map[string]any)["spent"])
}
