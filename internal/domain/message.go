package domain

import "time"

// IntentKind enumerates the coaching messages the service can send.
type IntentKind string

const (
	KindMorningMotivation IntentKind = "morning_motivation"
	KindCheckIn           IntentKind = "check_in"
	KindHealthUpdate      IntentKind = "health_update"
)

// MessageIntent is the transient unit of work derived from an inbound trigger.
// TriggerID is the idempotency key: scheduled triggers derive it from the job
// name and a timestamp bucket, webhook triggers from the platform update id.
type MessageIntent struct {
	UserID    string
	Kind      IntentKind
	TriggerID string
}

// BodySource records which branch produced a message body.
type BodySource string

const (
	SourceGenerated BodySource = "generated"
	SourceTemplate  BodySource = "template"
)

// Dispatch outcomes.
const (
	OutcomeSent   = "sent"
	OutcomeFailed = "failed"
)

// DispatchRecord is the durable side-effect ledger entry for one trigger id.
// At most one successful record exists per trigger id; replayed triggers read
// it and short-circuit instead of resending.
type DispatchRecord struct {
	TriggerID  string     `firestore:"trigger_id" json:"trigger_id"`
	UserID     string     `firestore:"user_id" json:"user_id"`
	BodySource BodySource `firestore:"body_source" json:"body_source"`
	SentAt     time.Time  `firestore:"sent_at" json:"sent_at"`
	Outcome    string     `firestore:"outcome" json:"outcome"`
}
