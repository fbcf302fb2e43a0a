package feedsync

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// FeedFormatError is fatal for the whole batch: the document is missing or
// its top-level records collection is malformed. Input carries a prefix of
// the offending payload so the feed can be diagnosed.
type FeedFormatError struct {
	Reason string
	Input  string
}

func (e *FeedFormatError) Error() string {
	return "feed format: " + e.Reason
}

func newFeedFormatError(reason string, raw []byte) *FeedFormatError {
	const maxInput = 512
	in := string(raw)
	if len(in) > maxInput {
		in = in[:maxInput] + "..."
	}
	return &FeedFormatError{Reason: reason, Input: in}
}

const mysqlErrDuplicateEntry = 1062

// storeWriteError wraps a bulk insert/delete failure. These are fatal for the
// run; nothing downstream recovers from them.
func storeWriteError(op string, err error) error {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlErrDuplicateEntry {
		return fmt.Errorf("%s: duplicate entry: %w", op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
