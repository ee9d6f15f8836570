package model

import "time"

// DefaultPoints is the available point balance of a fresh status.
const DefaultPoints = 3

type SkillStatus struct {
	TreeID           string    `json:"treeId"`
	AvailablePoints  float64   `json:"availablePoints"`
	UnlockedSkillIDs []string  `json:"unlockedSkillIds"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

func (s SkillStatus) Stamp() time.Time { return s.UpdatedAt }

// IsUnlocked reports whether skill id is in the unlocked set.
func (s SkillStatus) IsUnlocked(id string) bool {
	for _, u := range s.UnlockedSkillIDs {
		if u == id {
			return true
		}
	}
	return false
}

func (s SkillStatus) Draft() StatusDraft {
	return StatusDraft{
		AvailablePoints:  Some(s.AvailablePoints),
		UnlockedSkillIDs: Some(append([]string(nil), s.UnlockedSkillIDs...)),
		UpdatedAt:        Some(s.UpdatedAt.Format(time.RFC3339Nano)),
	}
}
