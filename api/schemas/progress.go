package schemas

import "sort"

// PlayerProgress mirrors the server-authoritative progression state. It is
// the body of GET and POST /api/skill-progress.
type PlayerProgress struct {
	Reputation             int            `json:"reputation" yaml:"reputation"`
	SkillPointsAvailable   int            `json:"skill_points_available" yaml:"skill_points_available"`
	UnlockedSkills         []string       `json:"unlocked_skills" yaml:"unlocked_skills"`
	SpecializationProgress map[string]int `json:"specialization_progress" yaml:"specialization_progress"`
}

// NewPlayerProgress returns an empty progress record with non-nil collections.
func NewPlayerProgress(reputation, skillPoints int) PlayerProgress {
	return PlayerProgress{
		Reputation:             reputation,
		SkillPointsAvailable:   skillPoints,
		UnlockedSkills:         []string{},
		SpecializationProgress: map[string]int{},
	}
}

// Clone returns a deep copy. Snapshots handed to render code and rollback
// points are always clones.
func (p PlayerProgress) Clone() PlayerProgress {
	out := PlayerProgress{
		Reputation:             p.Reputation,
		SkillPointsAvailable:   p.SkillPointsAvailable,
		UnlockedSkills:         make([]string, len(p.UnlockedSkills)),
		SpecializationProgress: make(map[string]int, len(p.SpecializationProgress)),
	}
	copy(out.UnlockedSkills, p.UnlockedSkills)
	for k, v := range p.SpecializationProgress {
		out.SpecializationProgress[k] = v
	}
	return out
}

// Normalize fills nil collections so a decoded document behaves like one
// built with NewPlayerProgress.
func (p *PlayerProgress) Normalize() {
	if p.UnlockedSkills == nil {
		p.UnlockedSkills = []string{}
	}
	if p.SpecializationProgress == nil {
		p.SpecializationProgress = map[string]int{}
	}
}

// HasUnlocked reports whether id is in UnlockedSkills.
func (p PlayerProgress) HasUnlocked(id string) bool {
	for _, s := range p.UnlockedSkills {
		if s == id {
			return true
		}
	}
	return false
}

// UnlockedSet returns UnlockedSkills as a set.
func (p PlayerProgress) UnlockedSet() map[string]bool {
	set := make(map[string]bool, len(p.UnlockedSkills))
	for _, s := range p.UnlockedSkills {
		set[s] = true
	}
	return set
}

// SortedUnlocked returns a sorted copy of UnlockedSkills.
func (p PlayerProgress) SortedUnlocked() []string {
	out := append([]string(nil), p.UnlockedSkills...)
	sort.Strings(out)
	return out
}

// Equal reports whether two records hold the same state. Unlock order is
// significant, matching the persisted document.
func (p PlayerProgress) Equal(o PlayerProgress) bool {
	if p.Reputation != o.Reputation || p.SkillPointsAvailable != o.SkillPointsAvailable {
		return false
	}
	if len(p.UnlockedSkills) != len(o.UnlockedSkills) || len(p.SpecializationProgress) != len(o.SpecializationProgress) {
		return false
	}
	for i := range p.UnlockedSkills {
		if p.UnlockedSkills[i] != o.UnlockedSkills[i] {
			return false
		}
	}
	for k, v := range p.SpecializationProgress {
		if ov, ok := o.SpecializationProgress[k]; !ok || ov != v {
			return false
		}
	}
	return true
}
