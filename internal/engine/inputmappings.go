package engine

import (
	"fmt"
	"strings"

	"github.com/slidecraft/orchestrator/internal/design"
	"github.com/slidecraft/orchestrator/internal/domain"
)

// registerInputMappings wires the closed set of named input_mapping
// functions: each is a pure function of (state, item?) that produces the
// JSON-shaped payload handed to the Worker Client for one worker kind
// (§3, §4.1).
func registerInputMappings(r *Registry) {
	r.addInputMapping("clarify_input", clarifyInput)
	r.addInputMapping("outline_input", outlineInput)
	r.addInputMapping("research_input", researchInput)
	r.addInputMapping("write_slide_input", writeSlideInput)
	r.addInputMapping("critique_input", critiqueInput)
	r.addInputMapping("polish_notes_input", polishNotesInput)
	r.addInputMapping("design_input", designInput)
	r.addInputMapping("script_input", scriptInput)
	r.addInputMapping("rag_section_input", ragSectionInput)
	r.addInputMapping("rag_presentation_input", ragPresentationInput)
	r.addInputMapping("quality_gate_input", qualityGateInput)
}

func clarifyInput(state *domain.WorkflowState, _ any) (any, error) {
	var sb strings.Builder
	for _, turn := range state.History {
		fmt.Fprintf(&sb, "%s: %s\n", turn.Role, turn.Content)
	}
	return sb.String(), nil
}

func outlineInput(state *domain.WorkflowState, _ any) (any, error) {
	return fmt.Sprintf(
		"Produce a presentation outline as JSON {sections:[{title,description,bullets}]} for the following clarified request:\n%s",
		state.Clarify.Response,
	), nil
}

func researchInput(state *domain.WorkflowState, _ any) (any, error) {
	return fmt.Sprintf(
		"Research supporting facts for this presentation outline, return JSON {findings:[{topic,summary,source}]}:\n%s",
		outlineSummary(state.Outline),
	), nil
}

func writeSlideInput(state *domain.WorkflowState, item any) (any, error) {
	section, ok := item.(domain.OutlineSection)
	if !ok {
		return nil, fmt.Errorf("write_slide_input: expected an OutlineSection item")
	}
	evidence := renderSectionEvidence(state.RAG, section.ID)
	return fmt.Sprintf(
		"Write one slide as JSON {id,title,content,speaker_notes,citations,design,image_prompt} for section %q.\nBullets to cover: %v\nEvidence available for citation:\n%s",
		section.Title, section.Bullets, evidence,
	), nil
}

func critiqueInput(state *domain.WorkflowState, item any) (any, error) {
	section, ok := item.(domain.OutlineSection)
	if !ok {
		return nil, fmt.Errorf("critique_input: expected an OutlineSection item")
	}
	slide, found := state.SlideByID(section.ID)
	if !found {
		return nil, fmt.Errorf("critique_input: no slide generated yet for section %s", section.ID)
	}
	return map[string]any{
		"slide_id": slide.ID,
		"title":    slide.Title,
		"content":  slide.Content,
	}, nil
}

func polishNotesInput(state *domain.WorkflowState, item any) (any, error) {
	section, ok := item.(domain.OutlineSection)
	if !ok {
		return nil, fmt.Errorf("polish_notes_input: expected an OutlineSection item")
	}
	slide, found := state.SlideByID(section.ID)
	if !found {
		return nil, fmt.Errorf("polish_notes_input: no slide generated yet for section %s", section.ID)
	}
	return fmt.Sprintf("Polish the speaker notes for slide %q. Current notes: %s", slide.Title, slide.SpeakerNotes), nil
}

func designInput(state *domain.WorkflowState, item any) (any, error) {
	section, ok := item.(domain.OutlineSection)
	if !ok {
		return nil, fmt.Errorf("design_input: expected an OutlineSection item")
	}
	slide, found := state.SlideByID(section.ID)
	if !found {
		return nil, fmt.Errorf("design_input: no slide generated yet for section %s", section.ID)
	}
	brand, _ := state.Metadata["brand_palette"]
	theme, _ := state.Metadata["brand_theme"].(string)
	if theme == "" {
		theme = "brand"
	}
	pattern, _ := state.Metadata["design_pattern"].(string)
	if pattern == "" {
		pattern = "gradient"
	}

	input := map[string]any{
		"slide_id": slide.ID,
		"title":    slide.Title,
		"content":  slide.Content,
		"brand":    brand,
	}
	if rule, ok := design.Lookup(theme, pattern); ok {
		input["pattern"] = rule.Pattern
		input["design_guidelines"] = rule.Guidelines
		input["pattern_intensity"] = rule.Intensity
	}
	return input, nil
}

// ragSectionInput builds the retrieval query for one outline section,
// consumed by the in-process evidence-store transport registered under
// the "rag-section" worker name.
func ragSectionInput(state *domain.WorkflowState, item any) (any, error) {
	section, ok := item.(domain.OutlineSection)
	if !ok {
		return nil, fmt.Errorf("rag_section_input: expected an OutlineSection item")
	}
	query := section.Title
	if len(section.Bullets) > 0 {
		query = query + ": " + strings.Join(section.Bullets, "; ")
	}
	return map[string]any{"query": query, "limit": 5}, nil
}

// ragPresentationInput builds the whole-presentation retrieval query,
// consumed by the "rag-presentation" worker.
func ragPresentationInput(state *domain.WorkflowState, _ any) (any, error) {
	query := state.Clarify.Response
	if query == "" {
		query = outlineSummary(state.Outline)
	}
	return map[string]any{"query": query, "limit": 10}, nil
}

// qualityGateInput hands the live state straight to the quality-gate
// worker: the registered transport is an in-process adapter over the
// deterministic Gate, not a remote call, so no JSON projection is needed.
func qualityGateInput(state *domain.WorkflowState, _ any) (any, error) {
	return state, nil
}

func scriptInput(state *domain.WorkflowState, _ any) (any, error) {
	var sb strings.Builder
	for _, slide := range state.Slides {
		fmt.Fprintf(&sb, "## %s\n%s\n\n", slide.Title, strings.Join(slide.Content, "\n"))
	}
	return fmt.Sprintf("Write a cohesive final presentation script joining these slides:\n%s", sb.String()), nil
}

func outlineSummary(o domain.Outline) string {
	var sb strings.Builder
	for _, s := range o.Sections {
		fmt.Fprintf(&sb, "- %s: %s\n", s.Title, s.Description)
	}
	return sb.String()
}

func renderSectionEvidence(rag domain.RAGCache, sectionID string) string {
	var sb strings.Builder
	for _, c := range rag.Presentation {
		fmt.Fprintf(&sb, "[%s] %s\n", c.Key, c.Text)
	}
	if section, ok := rag.Sections[sectionID]; ok {
		for _, c := range section.Chunks {
			fmt.Fprintf(&sb, "[%s] %s\n", c.Key, c.Text)
		}
	}
	return sb.String()
}
