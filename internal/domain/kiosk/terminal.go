package kiosk

import (
	"strings"
)

// maxNotifications bounds the toast queue of a terminal.
const maxNotifications = 8

// Terminal is the state machine of one kiosk device: list -> pin -> form.
// A Terminal is not safe for concurrent use; the device runtime serialises access.
//
// INVARIANT: view == ViewList iff selected == nil
// INVARIANT: the idle supervisor is armed iff view != ViewList
type Terminal struct {
	roster       []Identity
	rosterLoaded bool

	view        View
	selected    *Identity
	pin         PinPad
	verifiedPin string
	pinError    string
	formError   string
	draft       DraftEntry
	recent      []string
	submit      SubmitState
	idle        IdleSupervisor

	// epoch changes whenever a session starts or ends, so results of remote
	// calls issued for an older session can be recognised and dropped.
	epoch uint64

	notifications []Notification
}

// PinAttempt captures a verification request issued from the pin view.
type PinAttempt struct {
	Epoch      uint64
	IdentityID string
	Pin        string
}

// Submission captures an entry submission issued from the form view.
type Submission struct {
	Epoch      uint64
	IdentityID string
	Pin        string
	Entry      DraftEntry
}

// Snapshot is a read-only copy of the terminal state for rendering.
type Snapshot struct {
	View             View           `json:"view"`
	Selected         *Identity      `json:"selected"`
	IdleRemaining    int            `json:"idle_remaining"`
	IdleTimeout      int            `json:"idle_timeout"`
	PinLength        int            `json:"pin_length"`
	PinErrorKey      string         `json:"pin_error"`
	FormErrorKey     string         `json:"form_error"`
	Draft            *DraftEntry    `json:"draft"`
	RecentActivities []string       `json:"recent_activities"`
	EndOptions       []string       `json:"end_options"`
	SubmitState      SubmitState    `json:"submit_state"`
	Notifications    []Notification `json:"notifications"`
	Epoch            uint64         `json:"epoch"`
}

// NewTerminal creates a terminal at the identity list.
// PRE: idleSeconds > 0, otherwise DefaultIdleSeconds applies
// POST: roster is empty until LoadRoster is called
func NewTerminal(idleSeconds int) *Terminal {
	return &Terminal{
		view:   ViewList,
		submit: SubmitIdle,
		idle:   NewIdleSupervisor(idleSeconds),
	}
}

// LoadRoster replaces the roster, dropping administrators and blank ids.
func (t *Terminal) LoadRoster(ids []Identity) {
	roster := make([]Identity, 0, len(ids))
	for _, id := range ids {
		if id.Eligible() {
			roster = append(roster, id)
		}
	}
	t.roster = roster
	t.rosterLoaded = true
}

// RosterLoaded reports whether a roster fetch has completed.
func (t *Terminal) RosterLoaded() bool {
	return t.rosterLoaded
}

// Filter returns the roster entries whose display name contains term,
// case-insensitively. An empty term returns the whole roster in backend order.
func (t *Terminal) Filter(term string) []Identity {
	q := strings.ToLower(strings.TrimSpace(term))
	out := make([]Identity, 0, len(t.roster))
	for _, id := range t.roster {
		if q == "" || strings.Contains(strings.ToLower(id.DisplayName), q) {
			out = append(out, id)
		}
	}
	return out
}

// Select opens a session for a roster identity and shows the keypad.
// PRE: view is ViewList
// POST: view is ViewPin, PIN buffer and errors are empty, idle countdown armed
func (t *Terminal) Select(identityID string) error {
	if t.view != ViewList {
		return ErrWrongView
	}
	for _, id := range t.roster {
		if id.ID == identityID {
			sel := id
			t.selected = &sel
			t.view = ViewPin
			t.pin.Clear()
			t.pinError = ""
			t.formError = ""
			t.epoch++
			t.idle.Arm()
			return nil
		}
	}
	return ErrUnknownIdentity
}

// PressKey applies a keypad key in the pin view. Every key counts as activity.
// PRE: view is ViewPin
// POST: the PIN error is cleared
func (t *Terminal) PressKey(key string) error {
	if t.view != ViewPin {
		return ErrWrongView
	}
	t.idle.Touch()
	t.pinError = ""
	return t.pin.Press(key)
}

// BeginVerify validates the buffered PIN locally and captures the attempt.
// PRE: view is ViewPin
// POST: a PIN shorter than MinPinLength sets the pin-required error and
// returns ErrPinTooShort with no attempt to send
func (t *Terminal) BeginVerify() (PinAttempt, error) {
	if t.view != ViewPin || t.selected == nil {
		return PinAttempt{}, ErrWrongView
	}
	t.idle.Touch()
	if t.pin.Len() < MinPinLength {
		t.pinError = MsgPinRequired
		return PinAttempt{}, ErrPinTooShort
	}
	t.pinError = ""
	return PinAttempt{Epoch: t.epoch, IdentityID: t.selected.ID, Pin: t.pin.Value()}, nil
}

// RejectPin records a failed verification. The session and identity are kept.
// POST: returns ErrStaleResult when the attempt belongs to an ended session
func (t *Terminal) RejectPin(a PinAttempt) error {
	if !t.current(a.Epoch) || t.view != ViewPin {
		return ErrStaleResult
	}
	t.pinError = MsgPinInvalid
	return nil
}

// OpenForm completes a successful verification and shows the entry form.
// prefs may be nil when the preference fetch failed.
// PRE: the attempt is current and view is ViewPin
// POST: view is ViewForm with a fresh draft for today seeded from prefs
func (t *Terminal) OpenForm(a PinAttempt, prefs *RecentPreferences, today string) error {
	if !t.current(a.Epoch) || t.view != ViewPin {
		return ErrStaleResult
	}
	t.verifiedPin = a.Pin
	t.pin.Clear()
	t.pinError = ""
	t.formError = ""
	t.draft = NewDraft(today)
	t.draft.ApplyPreferences(prefs)
	t.recent = nil
	if prefs != nil {
		t.recent = append([]string(nil), prefs.RecentActivities...)
	}
	t.submit = SubmitIdle
	t.view = ViewForm
	t.idle.Touch()
	return nil
}

// Touch resets the idle countdown for a qualifying interaction.
// POST: returns false while disarmed or for a non-qualifying kind; view never changes
func (t *Terminal) Touch(kind ActivityKind) bool {
	if !kind.Valid() {
		return false
	}
	return t.idle.Touch()
}

// Tick advances the idle countdown by one second.
// POST: on expiry the session is torn down and true is returned
func (t *Terminal) Tick() bool {
	if !t.idle.Tick() {
		return false
	}
	t.reset()
	return true
}

// Logout ends the session immediately, same as an idle expiry.
func (t *Terminal) Logout() {
	t.reset()
}

// UpdateDraft applies an edit to the draft in the form view.
// PRE: view is ViewForm
// POST: the countdown is reset; the draft is unchanged when fn fails;
// a successful edit after a completed submission returns SubmitState to idle
func (t *Terminal) UpdateDraft(fn func(d *DraftEntry) error) error {
	if t.view != ViewForm {
		return ErrWrongView
	}
	t.idle.Touch()
	next := t.draft
	if err := fn(&next); err != nil {
		return err
	}
	t.draft = next
	if t.submit == SubmitDone {
		t.submit = SubmitIdle
	}
	return nil
}

// ChooseRecentActivity sets the activity verbatim from a recent chip.
func (t *Terminal) ChooseRecentActivity(label string) error {
	return t.UpdateDraft(func(d *DraftEntry) error {
		d.Activity = label
		return nil
	})
}

// BeginSubmit validates the draft and marks a submission in flight.
// PRE: view is ViewForm
// POST: a local validation failure sets the inline error, queues an error
// notification and returns the validation error with nothing to send
func (t *Terminal) BeginSubmit() (Submission, error) {
	if t.view != ViewForm || t.selected == nil {
		return Submission{}, ErrWrongView
	}
	if t.submit == SubmitSubmitting {
		return Submission{}, ErrSubmitInFlight
	}
	t.idle.Touch()
	if err := t.draft.Validate(); err != nil {
		key := validationKey(err)
		t.formError = key
		t.Notify(NotifyError, key)
		return Submission{}, err
	}
	t.formError = ""
	t.submit = SubmitSubmitting
	return Submission{
		Epoch:      t.epoch,
		IdentityID: t.selected.ID,
		Pin:        t.verifiedPin,
		Entry:      t.draft,
	}, nil
}

// CompleteSubmit records an accepted submission and soft-resets the draft.
// POST: identity, view, day and room are kept
func (t *Terminal) CompleteSubmit(s Submission) error {
	if !t.current(s.Epoch) || t.view != ViewForm {
		return ErrStaleResult
	}
	t.submit = SubmitDone
	t.formError = ""
	t.draft.SoftReset()
	t.Notify(NotifySuccess, MsgEntrySubmitted)
	return nil
}

// FailSubmit records a rejected submission with a translated message key.
// POST: the draft keeps the user's values for correction
func (t *Terminal) FailSubmit(s Submission, key string) error {
	if !t.current(s.Epoch) || t.view != ViewForm {
		return ErrStaleResult
	}
	t.submit = SubmitIdle
	t.formError = key
	t.Notify(NotifyError, key)
	return nil
}

// Notify queues a toast, dropping the oldest when the queue is full.
func (t *Terminal) Notify(kind NotificationKind, key string) {
	if key == "" {
		return
	}
	t.notifications = append(t.notifications, Notification{Kind: kind, Key: key})
	if len(t.notifications) > maxNotifications {
		t.notifications = t.notifications[len(t.notifications)-maxNotifications:]
	}
}

// DrainNotifications returns and clears the queued toasts.
func (t *Terminal) DrainNotifications() []Notification {
	out := t.notifications
	t.notifications = nil
	return out
}

// View returns the current screen.
func (t *Terminal) View() View {
	return t.view
}

// Selected returns the identity of the open session, if any.
func (t *Terminal) Selected() (Identity, bool) {
	if t.selected == nil {
		return Identity{}, false
	}
	return *t.selected, true
}

// Armed reports whether the idle countdown is running.
func (t *Terminal) Armed() bool {
	return t.idle.Armed()
}

// IdleRemaining returns the seconds left before an idle reset.
func (t *Terminal) IdleRemaining() int {
	return t.idle.Remaining()
}

// Epoch returns the current session epoch.
func (t *Terminal) Epoch() uint64 {
	return t.epoch
}

// Snapshot copies the state needed to render the kiosk screen.
func (t *Terminal) Snapshot() Snapshot {
	s := Snapshot{
		View:          t.view,
		IdleRemaining: t.idle.Remaining(),
		IdleTimeout:   t.idle.Timeout(),
		PinLength:     t.pin.Len(),
		PinErrorKey:   t.pinError,
		FormErrorKey:  t.formError,
		SubmitState:   t.submit,
		Epoch:         t.epoch,
	}
	if t.selected != nil {
		sel := *t.selected
		s.Selected = &sel
	}
	if t.view == ViewForm {
		d := t.draft
		s.Draft = &d
		s.RecentActivities = append([]string(nil), t.recent...)
		s.EndOptions = EndOptions(d.Start)
	}
	if len(t.notifications) > 0 {
		s.Notifications = append([]Notification(nil), t.notifications...)
	}
	return s
}

func (t *Terminal) current(epoch uint64) bool {
	return t.selected != nil && epoch == t.epoch
}

// reset returns to the identity list and forgets everything about the session.
func (t *Terminal) reset() {
	wasOpen := t.view != ViewList
	t.view = ViewList
	t.selected = nil
	t.pin.Clear()
	t.verifiedPin = ""
	t.pinError = ""
	t.formError = ""
	t.draft = DraftEntry{}
	t.recent = nil
	t.submit = SubmitIdle
	t.idle.Disarm()
	if wasOpen {
		t.epoch++
	}
}
