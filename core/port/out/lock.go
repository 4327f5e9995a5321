package out

import (
	"context"
	"time"
)

// CycleLock serialises ingestion cycles, possibly across replicas.
// TryAcquire returns a release func when the lock was taken, or ok=false when
// another holder has it.
type CycleLock interface {
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (release func(), ok bool, err error)
}
