package audit

import (
	"encoding/json"
	"errors"
	"slices"
	"time"

	"github.com/google/uuid"
)

var (
	ErrUnknownCategory = errors.New("audit: unknown category")
	ErrUnknownAction   = errors.New("audit: unknown action")
)

// Category groups audit events by the surface that produced them.
type Category string

const (
	CategoryKiosk     Category = "kiosk"
	CategoryDashboard Category = "dashboard"
	CategoryAdmin     Category = "admin"
	CategorySystem    Category = "system"
)

var categories = []Category{CategoryKiosk, CategoryDashboard, CategoryAdmin, CategorySystem}

// Action represents the action that occurred.
type Action string

const (
	ActionSessionStart      Action = "session_start"
	ActionPinFailed         Action = "pin_failed"
	ActionIdleTimeout       Action = "idle_timeout"
	ActionLogout            Action = "logout"
	ActionEntrySubmitted    Action = "entry_submitted"
	ActionEntryFailed       Action = "entry_failed"
	ActionRosterLoaded      Action = "roster_loaded"
	ActionApprove           Action = "approve"
	ActionReject            Action = "reject"
	ActionDelete            Action = "delete"
	ActionCloseMonth        Action = "close_month"
	ActionUnlockPeriod      Action = "unlock_period"
	ActionSetPin            Action = "set_pin"
	ActionExport            Action = "export"
	ActionDeviceRenamed     Action = "device_renamed"
	ActionAuditPurged       Action = "audit_purged"
	ActionHourAdded         Action = "hour_added"
	ActionInstructorCreated Action = "instructor_created"
	ActionInstructorDeleted Action = "instructor_deleted"
	ActionSetPassword       Action = "set_password"
)

var actions = []Action{
	ActionSessionStart, ActionPinFailed, ActionIdleTimeout, ActionLogout,
	ActionEntrySubmitted, ActionEntryFailed, ActionRosterLoaded,
	ActionApprove, ActionReject, ActionDelete, ActionCloseMonth, ActionUnlockPeriod,
	ActionSetPin, ActionExport, ActionDeviceRenamed, ActionAuditPurged,
	ActionHourAdded, ActionInstructorCreated, ActionInstructorDeleted, ActionSetPassword,
}

// ParseCategory accepts a category name as sent by the admin UI.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !slices.Contains(categories, c) {
		return "", ErrUnknownCategory
	}
	return c, nil
}

// ParseAction accepts an action name as sent by the admin UI.
func ParseAction(s string) (Action, error) {
	a := Action(s)
	if !slices.Contains(actions, a) {
		return "", ErrUnknownAction
	}
	return a, nil
}

// Severity represents the severity level of an audit event.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Event represents a single audit log entry.
type Event struct {
	ID           string    `json:"id"`
	Timestamp    time.Time `json:"timestamp"`
	Category     Category  `json:"category"`
	Action       Action    `json:"action"`
	Severity     Severity  `json:"severity"`
	ActorID      string    `json:"actor_id"`
	DeviceID     string    `json:"device_id"`
	ResourceID   string    `json:"resource_id"`
	ResourceType string    `json:"resource_type"`
	Description  string    `json:"description"`
	IPAddress    string    `json:"ip_address"`
	UserAgent    string    `json:"user_agent"`
	Metadata     string    `json:"metadata"`
}

// NewEvent creates an info-level audit event stamped at now.
// PRE: category and action are non-empty
// POST: Returns an Event with a fresh id
func NewEvent(now time.Time, category Category, action Action) Event {
	return Event{
		ID:        uuid.NewString(),
		Timestamp: now,
		Category:  category,
		Action:    action,
		Severity:  SeverityInfo,
	}
}

// WithActor sets the identity or administrator behind the event.
func (e Event) WithActor(actorID string) Event {
	e.ActorID = actorID
	return e
}

// WithDevice sets the kiosk device the event happened on.
func (e Event) WithDevice(deviceID string) Event {
	e.DeviceID = deviceID
	return e
}

func (e Event) WithSeverity(s Severity) Event {
	e.Severity = s
	return e
}

// WithResource names what the event acted on, e.g. ("ore", id).
func (e Event) WithResource(resourceType, resourceID string) Event {
	e.ResourceType = resourceType
	e.ResourceID = resourceID
	return e
}

func (e Event) WithDescription(desc string) Event {
	e.Description = desc
	return e
}

// WithRequest sets the client address and user agent.
func (e Event) WithRequest(ipAddress, userAgent string) Event {
	e.IPAddress = ipAddress
	e.UserAgent = userAgent
	return e
}

// WithDetail adds one key to the event's JSON metadata object.
// INVARIANT: Metadata is empty or a JSON object of strings
func (e Event) WithDetail(key, value string) Event {
	details := e.Details()
	details[key] = value
	b, _ := json.Marshal(details)
	e.Metadata = string(b)
	return e
}

// Details decodes Metadata; unreadable metadata yields an empty map.
func (e Event) Details() map[string]string {
	details := map[string]string{}
	if e.Metadata != "" {
		_ = json.Unmarshal([]byte(e.Metadata), &details)
	}
	return details
}
