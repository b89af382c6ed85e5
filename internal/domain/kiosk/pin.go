package kiosk

// PIN length bounds accepted by the keypad.
const (
	MinPinLength = 4
	MaxPinLength = 6
)

// Keypad keys besides the digits.
const (
	KeyBack = "back"
	KeyOK   = "ok"
)

// PinPad buffers digits typed on the on-screen keypad.
type PinPad struct {
	digits []byte
}

// Press applies one keypad key.
// PRE: key is a single digit or KeyBack
// POST: digits beyond MaxPinLength are ignored; KeyBack pops the last digit
func (p *PinPad) Press(key string) error {
	if key == KeyBack {
		if len(p.digits) > 0 {
			p.digits = p.digits[:len(p.digits)-1]
		}
		return nil
	}
	if len(key) != 1 || key[0] < '0' || key[0] > '9' {
		return ErrInvalidKey
	}
	if len(p.digits) >= MaxPinLength {
		return nil
	}
	p.digits = append(p.digits, key[0])
	return nil
}

// Len returns the number of buffered digits.
func (p *PinPad) Len() int {
	return len(p.digits)
}

// Value returns the buffered PIN.
func (p *PinPad) Value() string {
	return string(p.digits)
}

// Clear empties the buffer.
func (p *PinPad) Clear() {
	p.digits = p.digits[:0]
}

// ValidatePinFormat checks a PIN chosen by an administrator: 4 to 6 digits.
func ValidatePinFormat(pin string) error {
	if len(pin) < MinPinLength || len(pin) > MaxPinLength {
		return ErrPinFormat
	}
	for i := 0; i < len(pin); i++ {
		if pin[i] < '0' || pin[i] > '9' {
			return ErrPinFormat
		}
	}
	return nil
}
