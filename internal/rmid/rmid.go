// Package rmid implements the RM-ID display identifier grammar.
//
// An RM-ID names one governance record within one ledger subject:
//
//	BASE-GROUP.SUB
//
// BASE is an opaque alphanumeric token, GROUP is 1-99 rendered without
// leading zeros, SUB is 1-999 rendered as exactly three digits. A legacy
// form without the SUB component is accepted as parse input (sub defaults
// to 1) for migration compatibility but is never produced as output.
//
// The codec is pure: no state, no store access. All display-id
// construction in the repository goes through Format; call sites never
// concatenate strings themselves.
package rmid

import (
	"fmt"
	"strconv"
	"strings"

	dErrors "github.com/jedediahbey-rgb/OmniGoVault01--sub002/pkg/domain-errors"
)

// Group and subnumber bounds. Groups outside 1-99 only exist in
// pre-migration legacy data and are rejected here, not repaired.
const (
	GroupMin = 1
	GroupMax = 99
	SubMin   = 1
	SubMax   = 999
)

// RMID is one parsed display identifier.
type RMID struct {
	Base  string
	Group int
	Sub   int
}

// Parse decodes text into an RMID. Malformed input returns a validation
// error; callers must treat parse failure as "flag for manual review",
// never as "assign defaults".
func Parse(text string) (RMID, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return RMID{}, dErrors.New(dErrors.CodeValidation, "rm-id must not be empty")
	}

	dash := strings.IndexByte(trimmed, '-')
	if dash <= 0 || dash == len(trimmed)-1 {
		return RMID{}, dErrors.Newf(dErrors.CodeValidation, "rm-id %q missing BASE-GROUP separator", text)
	}
	if strings.IndexByte(trimmed[dash+1:], '-') >= 0 {
		return RMID{}, dErrors.Newf(dErrors.CodeValidation, "rm-id %q has more than one dash", text)
	}

	base := trimmed[:dash]
	if !isAlphanumeric(base) {
		return RMID{}, dErrors.Newf(dErrors.CodeValidation, "rm-id base %q must be alphanumeric", base)
	}

	rest := trimmed[dash+1:]
	groupText := rest
	subText := ""
	if dot := strings.IndexByte(rest, '.'); dot >= 0 {
		groupText = rest[:dot]
		subText = rest[dot+1:]
	}

	group, err := parseGroup(groupText)
	if err != nil {
		return RMID{}, err
	}

	// Legacy form: no sub component, defaults to the first entry.
	sub := SubMin
	if subText != "" {
		sub, err = parseSub(subText)
		if err != nil {
			return RMID{}, err
		}
	} else if strings.IndexByte(rest, '.') >= 0 {
		return RMID{}, dErrors.Newf(dErrors.CodeValidation, "rm-id %q has a trailing dot", text)
	}

	return RMID{Base: base, Group: group, Sub: sub}, nil
}

// Format renders the canonical display form. It does not validate ranges;
// use New for checked construction.
func Format(base string, group, sub int) string {
	return fmt.Sprintf("%s-%d.%03d", base, group, sub)
}

// FormatLegacy renders the sub-less pre-migration form. It exists for
// migration reporting only; records always render through Format.
func FormatLegacy(base string, group int) string {
	return fmt.Sprintf("%s-%d", base, group)
}

// New builds a range-checked RMID.
func New(base string, group, sub int) (RMID, error) {
	if base == "" || !isAlphanumeric(base) {
		return RMID{}, dErrors.Newf(dErrors.CodeValidation, "rm-id base %q must be a non-empty alphanumeric token", base)
	}
	if group < GroupMin || group > GroupMax {
		return RMID{}, dErrors.Newf(dErrors.CodeValidation, "rm-id group %d outside %d-%d", group, GroupMin, GroupMax)
	}
	if sub < SubMin || sub > SubMax {
		return RMID{}, dErrors.Newf(dErrors.CodeValidation, "rm-id sub %d outside %d-%d", sub, SubMin, SubMax)
	}
	return RMID{Base: base, Group: group, Sub: sub}, nil
}

// String renders the canonical display form. The legacy sub-less form is
// never produced.
func (id RMID) String() string {
	return Format(id.Base, id.Group, id.Sub)
}

func parseGroup(text string) (int, error) {
	if text == "" {
		return 0, dErrors.New(dErrors.CodeValidation, "rm-id group must not be empty")
	}
	if len(text) > 1 && text[0] == '0' {
		return 0, dErrors.Newf(dErrors.CodeValidation, "rm-id group %q must not have leading zeros", text)
	}
	group, err := strconv.Atoi(text)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeValidation, "rm-id group %q is not a number", text)
	}
	if group < GroupMin || group > GroupMax {
		return 0, dErrors.Newf(dErrors.CodeValidation, "rm-id group %d outside %d-%d", group, GroupMin, GroupMax)
	}
	return group, nil
}

func parseSub(text string) (int, error) {
	if len(text) > 3 {
		return 0, dErrors.Newf(dErrors.CodeValidation, "rm-id sub %q longer than three digits", text)
	}
	for i := 0; i < len(text); i++ {
		if text[i] < '0' || text[i] > '9' {
			return 0, dErrors.Newf(dErrors.CodeValidation, "rm-id sub %q is not a number", text)
		}
	}
	sub, err := strconv.Atoi(text)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeValidation, "rm-id sub %q is not a number", text)
	}
	if sub < SubMin || sub > SubMax {
		return 0, dErrors.Newf(dErrors.CodeValidation, "rm-id sub %d outside %d-%d", sub, SubMin, SubMax)
	}
	return sub, nil
}

func isAlphanumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'z':
		case c >= 'A' && c <= 'Z':
		default:
			return false
		}
	}
	return true
}
