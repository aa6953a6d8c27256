package xid

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New returns a random document id. A non-empty prefix is joined with a dash.
func New(prefix string) string {
	id, err := uuid.NewRandom()
	if err != nil {
		return join(prefix, fmt.Sprintf("%d", time.Now().UnixNano()))
	}
	return join(prefix, strings.ReplaceAll(id.String(), "-", ""))
}

func join(prefix string, id string) string {
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}
