package pstore

import (
	"strconv"
	"strings"
)

// Revision identifies a committed snapshot: either a specific revision
// number or the symbolic HEAD (the latest committed trailer).
type Revision struct {
	n    uint64
	head bool
}

// HeadRevision is the symbolic "latest" revision.
var HeadRevision = Revision{head: true}

// RevisionNumber wraps a specific revision number.
func RevisionNumber(n uint64) Revision { return Revision{n: n} }

func (r Revision) IsHead() bool { return r.head }
func (r Revision) Number() uint64 { return r.n }

// ParseRevision follows original_source/include/pstore/command_line/
// str_to_revision.hpp: the case-insensitively-trimmed string "head" means
// HeadRevision, otherwise it must parse as an unsigned integer.
func ParseRevision(s string) (Revision, error) {
	trimmed := strings.TrimSpace(s)
	if strings.EqualFold(trimmed, "head") {
		return HeadRevision, nil
	}

	n, err := strconv.ParseUint(trimmed, 10, 64)
	if err != nil {
		return Revision{}, wrap(ErrInvalidRevisionString)
	}
	return RevisionNumber(n), nil
}
