package models

// LifecycleState replaces bare archived flags. Rows are never hard-deleted;
// they move between these two states.
type LifecycleState string

const (
	StateActive   LifecycleState = "active"
	StateArchived LifecycleState = "archived"
)

func (s LifecycleState) IsArchived() bool {
	return s == StateArchived
}
