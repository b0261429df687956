package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
)

func TestRouter_Route(t *testing.T) {
	r := NewRouter()

	tests := []struct {
		capability Capability
		want       string
	}{
		{CapabilityWeather, WorkflowAPIFetching},
		{CapabilityExchangeRate, WorkflowAPIFetching},
		{CapabilitySummarizeDocument, WorkflowSummarization},
		{CapabilityDetectLanguage, WorkflowSummarization},
	}
	for _, tt := range tests {
		t.Run(string(tt.capability), func(t *testing.T) {
			def, err := r.Route(Request{Capability: tt.capability})
			require.NoError(t, err)
			assert.Equal(t, tt.want, def.Name)
			assert.NotEmpty(t, def.TaskStage())
			assert.NotEmpty(t, def.ValidationStage())
			assert.NotEqual(t, def.TaskStage(), def.ValidationStage())
		})
	}
}

func TestRouter_Unroutable(t *testing.T) {
	r := NewRouter()

	_, err := r.Route(Request{Capability: "translate"})
	require.ErrorIs(t, err, apperr.ErrUnroutable)

	var ue *apperr.UnroutableRequestError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "translate", ue.Capability)
	assert.Equal(t, []string{"detect_language", "exchange_rate", "summarize_document", "weather"}, ue.Available)
	assert.Contains(t, err.Error(), `"translate"`)
}

func TestRouter_Workflows(t *testing.T) {
	defs := NewRouter().Workflows()
	require.Len(t, defs, 2)
	assert.Equal(t, WorkflowAPIFetching, defs[0].Name)
	assert.Equal(t, WorkflowSummarization, defs[1].Name)

	def, ok := NewRouter().Workflow(WorkflowSummarization)
	require.True(t, ok)
	assert.Equal(t, "summarization_task", def.TaskStage())
	_, ok = NewRouter().Workflow("translation_with_validation")
	assert.False(t, ok)
}

func TestRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr bool
	}{
		{"no params", Request{Capability: CapabilityWeather}, false},
		{"strings and numbers", Request{Capability: CapabilityWeather, Params: map[string]any{"city": "Paris", "days": float64(2)}}, false},
		{"missing capability", Request{}, true},
		{"bool param", Request{Capability: CapabilityWeather, Params: map[string]any{"metric": true}}, true},
		{"nested param", Request{Capability: CapabilityWeather, Params: map[string]any{"city": map[string]any{}}}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrInvalid)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRequest_Param(t *testing.T) {
	req := Request{Params: map[string]any{"city": "  Paris ", "amount": float64(12.5), "count": 3}}
	assert.Equal(t, "Paris", req.Param("city"))
	assert.Equal(t, "12.5", req.Param("amount"))
	assert.Equal(t, "3", req.Param("count"))
	assert.Equal(t, "", req.Param("missing"))
	assert.Equal(t, "celsius", req.ParamOr("unit", "celsius"))
}
