package models

import "time"

// FactType classifies a MemoryFact.
type FactType string

const (
	FactGeneral    FactType = "general"
	FactPreference FactType = "preference"
	FactDecision   FactType = "decision"
	FactPattern    FactType = "pattern"
	FactContext    FactType = "context"
	FactPersona    FactType = "persona"
	FactPersonal   FactType = "personal"
)

// FactStatus gates whether a fact may be auto-injected into prompts.
type FactStatus string

const (
	// StatusCandidate facts have not been observed across enough
	// contexts to be trusted; they are never auto-injected.
	StatusCandidate FactStatus = "candidate"
	// StatusConfirmed facts may be surfaced by recall.
	StatusConfirmed FactStatus = "confirmed"
)

// MemoryFact is a single remembered fact about a user or project.
//
// Invariant: (Key, ProjectID) is unique whenever Key is non-empty, and
// an upsert on that pair replaces Content/Confidence/UpdatedAt rather
// than inserting a duplicate row. Only Status=confirmed, Suspicious=false
// facts may ever be returned by the recall engine — this is the
// memory-poisoning security boundary.
type MemoryFact struct {
	ID             string     `json:"id"`
	ProjectID      string     `json:"project_id,omitempty"`
	Key            string     `json:"key,omitempty"`
	Content        string     `json:"content"`
	FactType       FactType   `json:"fact_type"`
	Category       string     `json:"category,omitempty"`
	Confidence     float64    `json:"confidence"`
	Status         FactStatus `json:"status"`
	Suspicious     bool       `json:"suspicious"`
	LastAccessedAt time.Time  `json:"last_accessed_at,omitempty"`
	AccessCount    int        `json:"access_count"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// Injectable reports whether this fact may be auto-injected into a
// prompt: confirmed and not flagged suspicious.
func (f *MemoryFact) Injectable() bool {
	return f.Status == StatusConfirmed && !f.Suspicious
}

// SummaryLevel is the tier of a rolled-up conversation summary.
type SummaryLevel int

const (
	SummaryLevel1 SummaryLevel = 1 // compacts raw messages
	SummaryLevel2 SummaryLevel = 2 // combines ~5 level-1 summaries (daily)
	SummaryLevel3 SummaryLevel = 3 // combines ~5 level-2 summaries (weekly)
)

// Summary is a rolled-up digest of a contiguous message range. Once a
// higher level is produced from N lower-level summaries, the
// constituent rows are deleted; Message rows themselves are never
// deleted, only marked Summarized.
type Summary struct {
	ID                string       `json:"id"`
	ProjectID         string       `json:"project_id,omitempty"`
	Level             SummaryLevel `json:"level"`
	Text              string       `json:"text"`
	MessageRangeStart int64        `json:"message_range_start"`
	MessageRangeEnd   int64        `json:"message_range_end"`
	CreatedAt         time.Time    `json:"created_at"`
}

// Scope selects which partition of the vector index or keyword table a
// recall query should search.
type Scope string

const (
	ScopeSession Scope = "session"
	ScopeProject Scope = "project"
	ScopeGlobal  Scope = "global"
)
