package domain

import (
	"sync"
	"time"
)

// HistoryTurn is one prior user/assistant turn carried in WorkflowState.History.
type HistoryTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ClarifyResult holds the outcome of the clarify stage.
type ClarifyResult struct {
	Response  string         `json:"response"`
	Finished  bool           `json:"finished"`
	Telemetry map[string]any `json:"telemetry,omitempty"`
}

// OutlineSection is one section of the presentation outline (§3).
// Its ID is assigned once and never changes across reruns.
type OutlineSection struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Bullets     []string `json:"bullets"`
}

// Outline is the ordered sequence of sections plus the raw worker output
// they were parsed from.
type Outline struct {
	Sections []OutlineSection `json:"sections"`
	Raw      string           `json:"raw,omitempty"`
}

// SectionRAG is the retrieved evidence cached for one outline section.
type SectionRAG struct {
	Title  string  `json:"title"`
	Chunks []Chunk `json:"chunks"`
}

// RAGCache holds presentation-wide and per-section retrieved evidence (§3).
type RAGCache struct {
	Presentation []Chunk               `json:"presentation"`
	Sections     map[string]SectionRAG `json:"sections"`
}

// ChunkKeys returns the set of chunk_key values reachable from the cache,
// used by the Quality Gate's citation-closure check (§4.5, §8.3).
func (r RAGCache) ChunkKeys(sectionID string) map[string]struct{} {
	keys := make(map[string]struct{}, len(r.Presentation))
	for _, c := range r.Presentation {
		keys[c.Key] = struct{}{}
	}
	if section, ok := r.Sections[sectionID]; ok {
		for _, c := range section.Chunks {
			keys[c.Key] = struct{}{}
		}
	}
	return keys
}

// ResearchFinding is one item gathered by the research worker.
type ResearchFinding struct {
	Topic   string `json:"topic"`
	Summary string `json:"summary"`
	Source  string `json:"source,omitempty"`
}

// Research holds the accumulated findings across research steps.
type Research struct {
	Findings []ResearchFinding `json:"findings"`
}

// WorkflowState is the durable object threaded through every workflow step
// (§3). Mutations are applied by name through the engine's mutation
// registry; nothing outside that registry writes to it directly.
type WorkflowState struct {
	PresentationID string        `json:"presentation_id"`
	Version        int64         `json:"version"`
	History        []HistoryTurn `json:"history"`
	Clarify        ClarifyResult `json:"clarify"`
	Outline        Outline       `json:"outline"`
	Slides         []Slide       `json:"slides"`
	Script         string        `json:"script,omitempty"`
	RAG            RAGCache      `json:"rag"`
	Research       Research      `json:"research"`
	Metadata       map[string]any `json:"metadata"`
	Quality        WorkflowQualityState `json:"quality_state"`

	mu sync.RWMutex
}

// NewWorkflowState creates an empty state for a presentation.
func NewWorkflowState(presentationID string) *WorkflowState {
	return &WorkflowState{
		PresentationID: presentationID,
		RAG:            RAGCache{Sections: make(map[string]SectionRAG)},
		Metadata:       make(map[string]any),
	}
}

// Clone returns a deep-enough copy for use as the "before" snapshot a
// mutation receives, so mutations never race with concurrent readers of
// the previous barrier-committed state.
func (s *WorkflowState) Clone() *WorkflowState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	clone := &WorkflowState{
		PresentationID: s.PresentationID,
		Version:        s.Version,
		Script:         s.Script,
		Clarify:        s.Clarify,
		Outline:        Outline{Raw: s.Outline.Raw},
		Research:       Research{},
		Quality:        s.Quality,
	}
	clone.History = append(clone.History, s.History...)
	clone.Outline.Sections = append(clone.Outline.Sections, s.Outline.Sections...)
	clone.Slides = append(clone.Slides, s.Slides...)
	clone.Research.Findings = append(clone.Research.Findings, s.Research.Findings...)

	clone.RAG.Presentation = append(clone.RAG.Presentation, s.RAG.Presentation...)
	clone.RAG.Sections = make(map[string]SectionRAG, len(s.RAG.Sections))
	for k, v := range s.RAG.Sections {
		clone.RAG.Sections[k] = v
	}

	clone.Metadata = make(map[string]any, len(s.Metadata))
	for k, v := range s.Metadata {
		clone.Metadata[k] = v
	}
	return clone
}

// BumpVersion increments state.version; called exactly once per successful
// step boundary by the engine (§3 Invariants, §8.2).
func (s *WorkflowState) BumpVersion() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Version++
}

// SlideByID looks up a slide by its stable id.
func (s *WorkflowState) SlideByID(id string) (*Slide, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range s.Slides {
		if s.Slides[i].ID == id {
			return &s.Slides[i], true
		}
	}
	return nil, false
}

// ValidateInvariants checks the invariants listed in §3: unique slide ids,
// citation closure, stable section ids once assigned.
func (s *WorkflowState) ValidateInvariants() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{}, len(s.Slides))
	for _, slide := range s.Slides {
		if _, dup := seen[slide.ID]; dup {
			return &InvariantError{Invariant: "unique-slide-id", Detail: "duplicate slide id " + slide.ID}
		}
		seen[slide.ID] = struct{}{}

		keys := s.RAG.ChunkKeys(slide.ID)
		for _, citation := range slide.Citations {
			if _, ok := keys[citation]; !ok {
				return &InvariantError{
					Invariant: "citation-closure",
					Detail:    "slide " + slide.ID + " cites unknown chunk " + citation,
				}
			}
		}
	}
	return nil
}

// Timing records wall-clock spent in a named stage, accumulated into
// Metadata["timings"] for the telemetry layer to surface in responses.
type Timing struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration"`
}
