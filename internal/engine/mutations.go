package engine

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/slidecraft/orchestrator/internal/apperr"
	"github.com/slidecraft/orchestrator/internal/domain"
)

// registerMutations wires the closed set of named mutation functions the
// step definitions in §4.1 reference: store_outline_result, set_slides,
// merge_critic_feedback, upsert_slide, cache_section_rag,
// store_quality_summary, plus the clarify/research/script mutations a
// complete pipeline needs.
func registerMutations(r *Registry) {
	r.addMutation("store_clarify_result", storeClarifyResult)
	r.addMutation("store_outline_result", storeOutlineResult)
	r.addMutation("set_slides", setSlides)
	r.addMutation("upsert_slide", upsertSlide)
	r.addMutation("merge_critic_feedback", mergeCriticFeedback)
	r.addMutation("cache_section_rag", cacheSectionRAG)
	r.addMutation("cache_presentation_rag", cachePresentationRAG)
	r.addMutation("append_research_finding", appendResearchFinding)
	r.addMutation("store_script", storeScript)
	r.addMutation("store_quality_summary", storeQualitySummary)
}

func asMap(result any) (map[string]any, error) {
	m, ok := result.(map[string]any)
	if !ok {
		return nil, apperr.Internal(fmt.Sprintf("mutation expected map[string]any result, got %T", result), nil)
	}
	return m, nil
}

func storeClarifyResult(state *domain.WorkflowState, result any, _ any, _ any) error {
	m, err := asMap(result)
	if err != nil {
		return err
	}
	response, _ := m["response"].(string)
	finished, _ := m["finished"].(bool)
	telemetry, _ := m["telemetry"].(map[string]any)
	state.Clarify = domain.ClarifyResult{Response: response, Finished: finished, Telemetry: telemetry}
	state.History = append(state.History,
		domain.HistoryTurn{Role: domain.RoleAssistant, Content: response})
	return nil
}

func storeOutlineResult(state *domain.WorkflowState, result any, _ any, _ any) error {
	m, err := asMap(result)
	if err != nil {
		return err
	}
	rawSections, _ := m["sections"].([]any)
	raw, _ := m["raw"].(string)

	sections := make([]domain.OutlineSection, 0, len(rawSections))
	existingByTitle := make(map[string]string, len(state.Outline.Sections))
	for _, s := range state.Outline.Sections {
		existingByTitle[s.Title] = s.ID
	}

	for _, rs := range rawSections {
		sm, ok := rs.(map[string]any)
		if !ok {
			continue
		}
		title, _ := sm["title"].(string)
		description, _ := sm["description"].(string)
		bullets := toStringSlice(sm["bullets"])

		id, ok := existingByTitle[title]
		if !ok {
			// §3 invariant: outline.sections[i].id is stable once
			// assigned; reruns preserve ids, so a fresh id is only
			// minted the first time a section with this title appears.
			id = uuid.NewString()
		}
		sections = append(sections, domain.OutlineSection{
			ID:          id,
			Title:       title,
			Description: description,
			Bullets:     bullets,
		})
	}

	state.Outline = domain.Outline{Sections: sections, Raw: raw}
	return nil
}

func setSlides(state *domain.WorkflowState, result any, _ any, _ any) error {
	m, err := asMap(result)
	if err != nil {
		return err
	}
	rawSlides, _ := m["slides"].([]any)

	slides := make([]domain.Slide, 0, len(rawSlides))
	for _, rs := range rawSlides {
		sm, ok := rs.(map[string]any)
		if !ok {
			continue
		}
		slides = append(slides, slideFromMap(sm))
	}
	state.Slides = slides
	return nil
}

// upsertSlide applies a single slide's worth of a worker result inside a
// foreach over outline sections: item is the OutlineSection currently
// being processed.
func upsertSlide(state *domain.WorkflowState, result any, _ any, item any) error {
	m, err := asMap(result)
	if err != nil {
		return err
	}
	slide := slideFromMap(m)

	section, ok := item.(domain.OutlineSection)
	if ok && slide.ID == "" {
		slide.ID = section.ID
	}
	if slide.ID == "" {
		return apperr.Internal("upsert_slide: result has no id and no foreach item to derive one from", nil)
	}

	for i := range state.Slides {
		if state.Slides[i].ID == slide.ID {
			state.Slides[i] = slide
			return nil
		}
	}
	state.Slides = append(state.Slides, slide)
	return nil
}

func mergeCriticFeedback(state *domain.WorkflowState, result any, _ any, item any) error {
	m, err := asMap(result)
	if err != nil {
		return err
	}

	slideID := ""
	if section, ok := item.(domain.OutlineSection); ok {
		slideID = section.ID
	}
	if id, ok := m["slide_id"].(string); ok && id != "" {
		slideID = id
	}
	if slideID == "" {
		return apperr.Internal("merge_critic_feedback: no slide_id available", nil)
	}

	issues := toStringSlice(m["issues_found"])
	fixes := toStringSlice(m["fixes_applied"])
	revisedContent := toStringSlice(m["content"])
	revisedNotes, _ := m["speaker_notes"].(string)

	for i := range state.Slides {
		if state.Slides[i].ID != slideID {
			continue
		}
		if len(revisedContent) > 0 {
			state.Slides[i].Content = revisedContent
		}
		if revisedNotes != "" {
			state.Slides[i].SpeakerNotes = revisedNotes
		}
		state.Slides[i].QualityMetrics.IssuesFound = append(state.Slides[i].QualityMetrics.IssuesFound, issues...)
		state.Slides[i].QualityMetrics.FixesApplied = append(state.Slides[i].QualityMetrics.FixesApplied, fixes...)
		return nil
	}
	return apperr.Internal(fmt.Sprintf("merge_critic_feedback: slide %s not found", slideID), nil)
}

func cacheSectionRAG(state *domain.WorkflowState, result any, _ any, item any) error {
	m, err := asMap(result)
	if err != nil {
		return err
	}
	section, ok := item.(domain.OutlineSection)
	if !ok {
		return apperr.Internal("cache_section_rag: expected foreach item to be an OutlineSection", nil)
	}

	chunks := chunksFromResult(m, state.PresentationID)
	if state.RAG.Sections == nil {
		state.RAG.Sections = make(map[string]domain.SectionRAG)
	}
	state.RAG.Sections[section.ID] = domain.SectionRAG{Title: section.Title, Chunks: chunks}
	return nil
}

func cachePresentationRAG(state *domain.WorkflowState, result any, _ any, _ any) error {
	m, err := asMap(result)
	if err != nil {
		return err
	}
	state.RAG.Presentation = chunksFromResult(m, state.PresentationID)
	return nil
}

func appendResearchFinding(state *domain.WorkflowState, result any, _ any, _ any) error {
	m, err := asMap(result)
	if err != nil {
		return err
	}
	rawFindings, _ := m["findings"].([]any)
	for _, rf := range rawFindings {
		fm, ok := rf.(map[string]any)
		if !ok {
			continue
		}
		topic, _ := fm["topic"].(string)
		summary, _ := fm["summary"].(string)
		source, _ := fm["source"].(string)
		state.Research.Findings = append(state.Research.Findings, domain.ResearchFinding{
			Topic: topic, Summary: summary, Source: source,
		})
	}
	return nil
}

func storeScript(state *domain.WorkflowState, result any, _ any, _ any) error {
	if s, ok := result.(string); ok {
		state.Script = s
		return nil
	}
	m, err := asMap(result)
	if err != nil {
		return err
	}
	state.Script, _ = m["script"].(string)
	return nil
}

func storeQualitySummary(state *domain.WorkflowState, result any, _ any, _ any) error {
	m, err := asMap(result)
	if err != nil {
		return err
	}
	overall, _ := m["overall_presentation_score"].(float64)
	manualReview, _ := m["manual_review_required"].(bool)

	var failures []domain.GateFailure
	for _, rf := range toSlice(m["gate_failures"]) {
		fm, ok := rf.(map[string]any)
		if !ok {
			continue
		}
		slideID, _ := fm["slide_id"].(string)
		failures = append(failures, domain.GateFailure{SlideID: slideID, Reasons: toStringSlice(fm["reasons"])})
	}

	state.Quality = domain.WorkflowQualityState{
		OverallPresentationScore: int(overall),
		ManualReviewRequired:     manualReview,
		GateFailures:             failures,
		FixesApplied:             toStringSlice(m["fixes_applied"]),
	}
	return nil
}

func slideFromMap(m map[string]any) domain.Slide {
	id, _ := m["id"].(string)
	title, _ := m["title"].(string)
	notes, _ := m["speaker_notes"].(string)
	imagePrompt, _ := m["image_prompt"].(string)
	imageURL, _ := m["image_url"].(string)

	design, _ := m["design"].(map[string]any)
	metadata, _ := m["metadata"].(map[string]any)

	return domain.Slide{
		ID:           id,
		Title:        title,
		Content:      toStringSlice(m["content"]),
		SpeakerNotes: notes,
		Citations:    toStringSlice(m["citations"]),
		Design:       design,
		ImagePrompt:  imagePrompt,
		ImageURL:     imageURL,
		Metadata:     metadata,
	}
}

func chunksFromResult(m map[string]any, presentationID string) []domain.Chunk {
	raw := toSlice(m["chunks"])
	chunks := make([]domain.Chunk, 0, len(raw))
	for _, rc := range raw {
		cm, ok := rc.(map[string]any)
		if !ok {
			continue
		}
		key, _ := cm["chunk_key"].(string)
		name, _ := cm["name"].(string)
		text, _ := cm["text"].(string)
		url, _ := cm["url"].(string)
		chunks = append(chunks, domain.Chunk{
			Key:            key,
			PresentationID: presentationID,
			Name:           name,
			Text:           text,
			URL:            url,
		})
	}
	return chunks
}

func toSlice(v any) []any {
	s, _ := v.([]any)
	return s
}

func toStringSlice(v any) []string {
	raw, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
