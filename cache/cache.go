package cache

import (
	"context"
	"fmt"

	"github.com/freewilll/splitledger/ledger"
)

// Cache is an interface used for caching users' balance summaries. Entries are
// dropped whenever a ledger mutation touches the user.
//
// Every invalidation bumps the user's generation. A reader takes the
// generation before it reads the store and hands it to SetSummary, which
// drops the write if the user was invalidated in between, so a summary
// computed from pre-commit state is never cached after the commit.
type Cache interface {
	GetSummary(ctx context.Context, userID int, group *ledger.Group) (ledger.Summary, bool, error)
	Generation(ctx context.Context, userID int) (int64, error)
	SetSummary(ctx context.Context, userID int, group *ledger.Group, gen int64, summary ledger.Summary) error
	Invalidate(ctx context.Context, userIDs ...int) error
}

// scopeKey names a summary scope: every context, or one group context
func scopeKey(group *ledger.Group) string {
	if group == nil {
		return "all"
	}
	return fmt.Sprintf("g%d", *group)
}
