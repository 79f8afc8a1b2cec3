package collab

// SkillState is the lifecycle stage of a candidate skill.
type SkillState string

const (
	SkillStateDraft    SkillState = "draft"
	SkillStateActive   SkillState = "active"
	SkillStateDiscarded SkillState = "discarded"
)

// EntrySignature documents the fixed shape every skill must expose:
// a single operation taking one string and returning one string.
const EntrySignature = "func(message string) string"

// Skill is a candidate unit of executable logic extracted from a winning
// refined answer. It is validated by the Sandbox Runner before promotion.
type Skill struct {
	ID         string
	Name       string
	Source     string
	EntryName  string
	State      SkillState
	LastTestOK bool
}

// CanPromote reports whether s may move from draft to active: the last
// sandbox test recorded against it must have passed.
func (s Skill) CanPromote() bool {
	return s.State == SkillStateDraft && s.LastTestOK
}
