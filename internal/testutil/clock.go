package testutil

import (
	"strconv"
	"sync/atomic"
	"time"

	"saveswap/internal/swap"
)

// SnapshotTime is the instant reported by FixedClock. Archive names built
// from it read "<account>_2024-01-15T103000Z.tar.gz".
var SnapshotTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

// FrozenClock always reports the same instant.
type FrozenClock struct {
	At time.Time
}

var _ swap.Clock = FrozenClock{}

func (c FrozenClock) Now() time.Time { return c.At }

// FixedClock returns a FrozenClock stopped at SnapshotTime.
func FixedClock() FrozenClock {
	return FrozenClock{At: SnapshotTime}
}

// SequentialIDs hands out activity entry IDs "act-1", "act-2", ...
type SequentialIDs struct {
	n atomic.Int64
}

var _ swap.IDGenerator = (*SequentialIDs)(nil)

func NewStubIDGenerator() *SequentialIDs {
	return &SequentialIDs{}
}

func (g *SequentialIDs) New() string {
	return "act-" + strconv.FormatInt(g.n.Add(1), 10)
}
