package enums

import "fmt"

// OutboxAggregateType names the entity an audit event belongs to.
type OutboxAggregateType string

const (
	AggregateIdentity     OutboxAggregateType = "identity"
	AggregateProfile      OutboxAggregateType = "profile"
	AggregateDoor         OutboxAggregateType = "door"
	AggregateLockOverride OutboxAggregateType = "lock_override"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateIdentity,
	AggregateProfile,
	AggregateDoor,
	AggregateLockOverride,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names an audited domain change.
type OutboxEventType string

const (
	EventIdentityCreated   OutboxEventType = "identity_created"
	EventIdentityDeleted   OutboxEventType = "identity_deleted"
	EventProfileRepaired   OutboxEventType = "profile_repaired"
	EventAccessCodeChanged OutboxEventType = "access_code_changed"
	EventDoorStateChanged  OutboxEventType = "door_state_changed"
	EventDoorActiveChanged OutboxEventType = "door_active_changed"
	EventLockEngaged       OutboxEventType = "lock_engaged"
	EventLockDisengaged    OutboxEventType = "lock_disengaged"
)

var validOutboxEventTypes = []OutboxEventType{
	EventIdentityCreated,
	EventIdentityDeleted,
	EventProfileRepaired,
	EventAccessCodeChanged,
	EventDoorStateChanged,
	EventDoorActiveChanged,
	EventLockEngaged,
	EventLockDisengaged,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
