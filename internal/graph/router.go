package graph

import (
	"sort"

	"github.com/Divas-Gupta30/agentgate/internal/apperr"
)

const (
	WorkflowAPIFetching   = "api_fetching_with_validation"
	WorkflowSummarization = "summarization_with_validation"
)

var (
	apiFetchingWorkflow = WorkflowDefinition{
		Name:        WorkflowAPIFetching,
		Description: "Fetch live data from a public API, answer from it, then validate the answer against the data",
		Stages:      [2]string{"api_fetching_task", "api_fetching_validation"},
	}
	summarizationWorkflow = WorkflowDefinition{
		Name:        WorkflowSummarization,
		Description: "Extract and summarize a document, then validate the summary against the extracted text",
		Stages:      [2]string{"summarization_task", "summarization_validation"},
	}
)

// Router maps capabilities to workflows. The table is fixed at construction.
type Router struct {
	table map[Capability]WorkflowDefinition
}

// NewRouter returns the router for the built-in capabilities.
func NewRouter() *Router {
	return &Router{table: map[Capability]WorkflowDefinition{
		CapabilityWeather:           apiFetchingWorkflow,
		CapabilityExchangeRate:      apiFetchingWorkflow,
		CapabilitySummarizeDocument: summarizationWorkflow,
		CapabilityDetectLanguage:    summarizationWorkflow,
	}}
}

// Route returns the workflow for req.Capability.
func (r *Router) Route(req Request) (WorkflowDefinition, error) {
	def, ok := r.table[req.Capability]
	if !ok {
		return WorkflowDefinition{}, &apperr.UnroutableRequestError{
			Capability: string(req.Capability),
			Available:  r.capabilityNames(),
		}
	}
	return def, nil
}

// Capabilities returns the routable capabilities in sorted order.
func (r *Router) Capabilities() []Capability {
	caps := make([]Capability, 0, len(r.table))
	for c := range r.table {
		caps = append(caps, c)
	}
	sort.Slice(caps, func(i, j int) bool { return caps[i] < caps[j] })
	return caps
}

// Workflow looks a workflow up by name.
func (r *Router) Workflow(name string) (WorkflowDefinition, bool) {
	for _, def := range r.table {
		if def.Name == name {
			return def, true
		}
	}
	return WorkflowDefinition{}, false
}

// Workflows returns each distinct workflow once, sorted by name.
func (r *Router) Workflows() []WorkflowDefinition {
	seen := make(map[string]bool)
	var defs []WorkflowDefinition
	for _, def := range r.table {
		if !seen[def.Name] {
			seen[def.Name] = true
			defs = append(defs, def)
		}
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

func (r *Router) capabilityNames() []string {
	caps := r.Capabilities()
	names := make([]string, len(caps))
	for i, c := range caps {
		names[i] = string(c)
	}
	return names
}
