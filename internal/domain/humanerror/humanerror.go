// Package humanerror maps backend failures to user-facing message keys.
// Matching is by code or by substring of the lowercased message, so it keeps
// working across backend versions that reword their errors.
package humanerror

import (
	"errors"
	"strings"
)

// Message keys, localized by the i18n catalogues.
const (
	KeyUnknown      = "error.unknown"
	KeyAuthRequired = "error.auth_required"
	KeyAdminOnly    = "error.admin_only"
	KeyPeriodLocked = "error.period_locked"
	KeyForbidden    = "error.forbidden"
	KeyInvalidRange = "error.invalid_range"
	KeyGranularity  = "error.granularity"
	KeyOverlap      = "error.overlap"
	KeyDuplicate    = "error.duplicate"
	KeyInvalidValue = "error.invalid_value"
	KeyMissingField = "error.missing_field"
	KeyTooLong      = "error.too_long"
	KeyAuditFailure = "error.audit_failure"
	KeyGeneric      = "error.generic"
)

// Coded is implemented by errors that carry a backend error code.
type Coded interface {
	ErrorCode() string
}

type rule struct {
	key        string
	code       string
	substrings []string
}

// rules are evaluated in order; the first match wins.
var rules = []rule{
	{key: KeyAuthRequired, substrings: []string{"devi effettuare il login", "not authenticated"}},
	{key: KeyAdminOnly, substrings: []string{"solo admin", "questa operazione è riservata agli amministratori"}},
	{key: KeyPeriodLocked, substrings: []string{"row-level security", "rls"}},
	{key: KeyForbidden, code: "PGRST301", substrings: []string{"permission denied"}},
	{key: KeyInvalidRange, substrings: []string{"l'orario di fine non può essere precedente", "fine <= inizio", "chk_ora_range_valid"}},
	{key: KeyGranularity, substrings: []string{"chk_granularita_30min"}},
	{key: KeyOverlap, substrings: []string{"no_overlap_per_user", "overlap", "conflitto di orario"}},
	{key: KeyDuplicate, substrings: []string{"duplicate key value", "violates unique constraint"}},
	{key: KeyInvalidValue, substrings: []string{"invalid input value for enum", "invalid input syntax"}},
	{key: KeyMissingField, substrings: []string{"null value in column", "not-null constraint"}},
	{key: KeyTooLong, substrings: []string{"value too long"}},
	{key: KeyAuditFailure, substrings: []string{"audit_logs"}},
}

// Translate returns the message key for a backend error.
// PRE: none
// POST: nil yields KeyUnknown; unrecognized errors yield KeyGeneric
func Translate(err error) string {
	if err == nil {
		return KeyUnknown
	}
	raw := strings.ToLower(err.Error())
	code := ""
	var coded Coded
	if errors.As(err, &coded) {
		code = coded.ErrorCode()
	}
	for _, r := range rules {
		if r.code != "" && code == r.code {
			return r.key
		}
		for _, s := range r.substrings {
			if strings.Contains(raw, s) {
				return r.key
			}
		}
	}
	return KeyGeneric
}

// Keys lists every key Translate can return, for catalogue completeness checks.
func Keys() []string {
	keys := []string{KeyUnknown, KeyGeneric}
	for _, r := range rules {
		keys = append(keys, r.key)
	}
	return keys
}
