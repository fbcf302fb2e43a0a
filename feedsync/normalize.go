package feedsync

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Normalize parses a raw feed document into the ordered record list. A
// missing or malformed "Products" collection, or a record without a product
// name or location address, fails the whole batch with *FeedFormatError: a
// partial feed is never acceptable. Price validation is deferred to the
// reconciler so one bad price cannot block the rest of the batch.
func Normalize(raw []byte) ([]ValidatedRecord, error) {
	var doc FeedDocument
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, newFeedFormatError("invalid JSON: "+err.Error(), raw)
	}
	if doc.Products == nil {
		return nil, newFeedFormatError(`missing top-level "Products" collection`, raw)
	}

	records := make([]ValidatedRecord, 0, len(doc.Products))
	for i, rec := range doc.Products {
		if err := validate.Struct(rec); err != nil {
			return nil, newFeedFormatError(fmt.Sprintf("record %d: %v", i, err), raw)
		}
		name := strings.TrimSpace(rec.Product.Name)
		address := strings.TrimSpace(rec.Location.Address)
		if name == "" || address == "" {
			return nil, newFeedFormatError(fmt.Sprintf("record %d: blank product name or location address", i), raw)
		}
		records = append(records, ValidatedRecord{
			ProductName:     name,
			LocationAddress: address,
			RawPrice:        rec.Price,
		})
	}
	return records, nil
}
