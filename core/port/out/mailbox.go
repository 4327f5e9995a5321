package out

import (
	"context"
	"fmt"
	"strings"

	"ideabox/core/domain"
)

// FetchPolicy selects which messages a mailbox session returns.
type FetchPolicy string

const (
	// FetchUnseen returns unread messages only; fetched messages become read.
	FetchUnseen FetchPolicy = "unseen"
	// FetchRecent returns the newest messages regardless of read state, read-only.
	FetchRecent FetchPolicy = "recent"
)

// ParseFetchPolicy accepts the config spelling of a policy.
func ParseFetchPolicy(s string) (FetchPolicy, error) {
	switch FetchPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case FetchUnseen, "":
		return FetchUnseen, nil
	case FetchRecent:
		return FetchRecent, nil
	default:
		return "", fmt.Errorf("unknown fetch policy %q", s)
	}
}

// FetchRequest bounds one fetch.
type FetchRequest struct {
	Policy FetchPolicy
	Limit  int
}

// Mailbox opens sessions against the intake mailbox.
type Mailbox interface {
	Connect(ctx context.Context) (MailboxSession, error)
}

// MailboxSession is one connect-fetch-disconnect scope. Close must be safe to call
// on every exit path.
type MailboxSession interface {
	// Fetch returns candidate messages oldest first. On error it may also return
	// the messages fully received before the failure.
	Fetch(ctx context.Context, req FetchRequest) ([]domain.InboundMessage, error)
	Close() error
}
