package feedsync

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// parsePrice coerces a raw feed price (JSON number or numeric string) to a
// non-negative integer. Fractional prices lose their fractional part; that
// truncation is accepted feed behavior.
func parsePrice(raw json.RawMessage) (int, error) {
	s := strings.TrimSpace(string(raw))
	if s == "" || s == "null" {
		return 0, errors.New("price missing")
	}
	if strings.HasPrefix(s, `"`) {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return 0, fmt.Errorf("invalid price %s: %w", s, err)
		}
		s = strings.TrimSpace(unquoted)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid price %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("negative price %s", d.String())
	}
	return int(d.IntPart()), nil
}
