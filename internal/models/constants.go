package models

// BookingStatus is the lifecycle state of a waitlist entry.
type BookingStatus string

const (
	StatusWaiting   BookingStatus = "waiting"
	StatusNotified  BookingStatus = "notified"
	StatusConfirmed BookingStatus = "confirmed"
	StatusSeated    BookingStatus = "seated"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
	StatusNoShow    BookingStatus = "noshow"
)

// Valid reports whether s is a known booking status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusWaiting, StatusNotified, StatusConfirmed, StatusSeated,
		StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further transition can leave s.
func (s BookingStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

// HoldsTable reports whether a booking in state s must reference a table.
func (s BookingStatus) HoldsTable() bool {
	switch s {
	case StatusNotified, StatusConfirmed, StatusSeated:
		return true
	default:
		return false
	}
}

// InGracePeriod reports whether a booking in state s carries a grace deadline.
func (s BookingStatus) InGracePeriod() bool {
	return s == StatusNotified || s == StatusConfirmed
}

// ActiveStatuses are the non-terminal booking states.
var ActiveStatuses = []BookingStatus{StatusWaiting, StatusNotified, StatusConfirmed, StatusSeated}

// TableStatus is the occupancy state of a physical table.
type TableStatus string

const (
	TableAvailable   TableStatus = "available"
	TableHeld        TableStatus = "held"
	TableOccupied    TableStatus = "occupied"
	TableCleaning    TableStatus = "cleaning"
	TableUnavailable TableStatus = "unavailable"
)

// Valid reports whether s is a known table status.
func (s TableStatus) Valid() bool {
	switch s {
	case TableAvailable, TableHeld, TableOccupied, TableCleaning, TableUnavailable:
		return true
	default:
		return false
	}
}

// Language is a customer's SMS language preference.
type Language string

const (
	LanguageEnglish Language = "en"
	LanguageFrench  Language = "fr"
)

// ParseLanguage maps free-form input to a supported language, defaulting to English.
func ParseLanguage(raw string) Language {
	switch Language(raw) {
	case LanguageFrench:
		return LanguageFrench
	default:
		return LanguageEnglish
	}
}

const (
	// DefaultGracePeriodMinutes is the confirmation window after a table offer.
	DefaultGracePeriodMinutes = 15

	// DefaultFollowUpBeforeMinutes is how long before the grace deadline the reminder goes out.
	DefaultFollowUpBeforeMinutes = 7

	// DefaultAverageTurnMinutes is used to estimate wait time per party ahead in the queue.
	DefaultAverageTurnMinutes = 10
)
