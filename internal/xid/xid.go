package xid

import (
	"github.com/google/uuid"
)

// New returns a random identifier tagged with the record kind, e.g. "shift-<uuid>".
func New(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
