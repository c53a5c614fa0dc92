// internal/domain/notify/intent.go
package notify

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Reason is the category of a scheduled notification trigger.
type Reason string

const (
	ReasonSlotStarted     Reason = "SLOT_STARTED"
	ReasonSlotOverdue     Reason = "SLOT_OVERDUE"
	ReasonStartsTomorrow  Reason = "STARTS_TOMORROW"
	ReasonStartsToday     Reason = "STARTS_TODAY"
	ReasonOverdueFollowup Reason = "OVERDUE_FOLLOWUP"
)

// RecipientRole identifies who a composed message is addressed to.
type RecipientRole string

const (
	RolePatient   RecipientRole = "PATIENT"
	RoleClinician RecipientRole = "CLINICIAN"
)

// Severity of a composed message.
type Severity string

const (
	SeverityInfo     Severity = "INFO"
	SeverityWarning  Severity = "WARNING"
	SeverityCritical Severity = "CRITICAL"
)

// Tier is the urgency tier of an overdue followup, derived from how long ago
// the slot's window closed.
type Tier string

const (
	TierMedium   Tier = "MEDIUM"
	TierHigh     Tier = "HIGH"
	TierCritical Tier = "CRITICAL"
)

// TierFor returns the followup urgency for a slot whose window closed at
// endAt: more than 30 elapsed days is critical, more than 14 is high,
// anything else is medium.
func TierFor(endAt, now time.Time) Tier {
	days := now.Sub(endAt).Hours() / 24
	switch {
	case days > 30:
		return TierCritical
	case days > 14:
		return TierHigh
	default:
		return TierMedium
	}
}

// Intent is one composed, recipient-specific message. It is transient: it is
// handed to the push transport and never persisted by this service.
type Intent struct {
	SlotID   uuid.UUID
	Role     RecipientRole
	ChatID   int64
	Sender   string // assigned clinician, or the default system sender
	Title    string
	Body     string
	Severity Severity
	Reason   Reason
}

// Key builds the dedup key for one (reason, slot) pair. The discriminator
// varies by reason: the day bucket for date reminders, the urgency tier for
// overdue followups, empty for state-change notifications.
func Key(reason Reason, slotID uuid.UUID, discriminator string) string {
	if discriminator == "" {
		return fmt.Sprintf("%s|%s", reason, slotID)
	}
	return fmt.Sprintf("%s|%s|%s", reason, slotID, discriminator)
}
