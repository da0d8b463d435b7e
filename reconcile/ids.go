package reconcile

import (
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TemporaryPrefix marks ids generated on the client.
const TemporaryPrefix = "temp-"

// IDGenerator produces temporary ids for records the gateway has not yet
// assigned a permanent id to.
type IDGenerator interface {
	NewTemporaryID() string
	IsTemporary(id string) bool
}

// UUIDGenerator issues temp-<uuid v4> ids.
type UUIDGenerator struct{}

func (UUIDGenerator) NewTemporaryID() string {
	return TemporaryPrefix + uuid.NewString()
}

func (UUIDGenerator) IsTemporary(id string) bool {
	return strings.HasPrefix(id, TemporaryPrefix)
}

// SequenceGenerator issues temp-1, temp-2, ... and is meant for tests.
type SequenceGenerator struct {
	mu sync.Mutex
	n  int
}

func (g *SequenceGenerator) NewTemporaryID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return TemporaryPrefix + strconv.Itoa(g.n)
}

func (g *SequenceGenerator) IsTemporary(id string) bool {
	return strings.HasPrefix(id, TemporaryPrefix)
}
