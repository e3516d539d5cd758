package models

import "time"

// SkillLevel grades a facilitator's proficiency with a module.
type SkillLevel string

const (
	SkillLeader     SkillLevel = "leader"
	SkillProficient SkillLevel = "proficient"
	SkillInterested SkillLevel = "interested"
	// SkillNoInterest excludes the facilitator from swap targeting and
	// available-facilitator listings for the module.
	SkillNoInterest SkillLevel = "no_interest"
)

// FacilitatorSkill records a facilitator's declared level for a module.
type FacilitatorSkill struct {
	ID            string     `db:"id" json:"id"`
	FacilitatorID string     `db:"facilitator_id" json:"facilitator_id"`
	ModuleID      string     `db:"module_id" json:"module_id"`
	Level         SkillLevel `db:"level" json:"level"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// AvailableFacilitator annotates a unit roster member for swap target
// selection.
type AvailableFacilitator struct {
	UserID      string     `json:"user_id"`
	FullName    string     `json:"full_name"`
	Email       string     `json:"email"`
	SkillLevel  SkillLevel `json:"skill_level"`
	IsAvailable bool       `json:"is_available"`
	Reason      string     `json:"reason,omitempty"`
}
