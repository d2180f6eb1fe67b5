// Package record defines the normalized paper records consumed by the network
// builders and the selector that turns a record into entity lists.
package record

import (
	"errors"
	"strconv"
	"strings"
	"unicode/utf8"
)

// UnknownYear marks a record whose year could not be resolved.
const UnknownYear = 0

// placeholder stands in for a missing author name part.
const placeholder = "-"

// ErrMalformed is returned when a record lacks the fields required for the
// requested network.
var ErrMalformed = errors.New("record: malformed record")

// EntityID identifies a node: an author key or a subject code. Two records
// referring to the same entity carry equal EntityIDs.
type EntityID string

// Paper is one normalized bibliographic record.
type Paper struct {
	ID       string     `json:"id"`
	Authors  []EntityID `json:"authors"`
	Subjects []EntityID `json:"subjects"`
	Year     int        `json:"year"`
}

// HasYear reports whether the record's year is known.
func (p Paper) HasYear() bool { return p.Year != UnknownYear }

// Author holds the name parts of a single author.
type Author struct {
	Given   string `json:"given"`
	Middle  string `json:"middle"`
	Surname string `json:"surname"`
	Suffix  string `json:"suffix"`
}

// Key returns the canonical entity key "given|middle|surname|suffix". Missing
// parts are written as "-". With initialsOnly the given and middle names are
// reduced to their first letter.
func (a Author) Key(initialsOnly bool) EntityID {
	given := strings.TrimSpace(a.Given)
	middle := strings.TrimSpace(a.Middle)
	if initialsOnly {
		given = initial(given)
		middle = initial(middle)
	}
	parts := []string{given, middle, strings.TrimSpace(a.Surname), strings.TrimSpace(a.Suffix)}
	for i, p := range parts {
		if p == "" {
			parts[i] = placeholder
		}
	}
	return EntityID(strings.Join(parts, "|"))
}

// ParseAuthorKey splits a key produced by Author.Key back into its parts.
func ParseAuthorKey(id EntityID) (Author, bool) {
	parts := strings.Split(string(id), "|")
	if len(parts) != 4 {
		return Author{}, false
	}
	for i, p := range parts {
		if p == placeholder {
			parts[i] = ""
		}
	}
	return Author{Given: parts[0], Middle: parts[1], Surname: parts[2], Suffix: parts[3]}, true
}

func initial(name string) string {
	name = strings.Trim(name, " .-")
	if name == "" {
		return ""
	}
	r, _ := utf8.DecodeRuneInString(name)
	return string(r)
}

// SubjectAtLevel converts a hierarchical subject code such as "45.10.Db" to
// the requested level of detail:
//
//	level 1: decade of the leading number ("45.10.Db" -> "40")
//	level 2: leading number ("45.10.Db" -> "45")
//	level 3 or 0: the full code, trimmed
//
// It returns false when the code has no numeric leading part and a numeric
// level was requested.
func SubjectAtLevel(code string, level int) (EntityID, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return "", false
	}
	if level != 1 && level != 2 {
		return EntityID(code), true
	}

	head, _, _ := strings.Cut(code, ".")
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil || n < 0 {
		return "", false
	}
	if level == 1 {
		n = (n / 10) * 10
	}
	return EntityID(strconv.Itoa(n)), true
}
