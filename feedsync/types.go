package feedsync

import "encoding/json"

// FeedDocument is the external feed shape: a single top-level "Products"
// collection, ordered. Anything else in the document is ignored.
type FeedDocument struct {
	Products []FeedRecord `json:"Products"`
}

type FeedRecord struct {
	Product  FeedProduct  `json:"product" validate:"required"`
	Location FeedLocation `json:"location" validate:"required"`
	// Price arrives as a number or a numeric string; kept raw so a bad value
	// fails the single record, not the batch.
	Price json.RawMessage `json:"price"`
}

type FeedProduct struct {
	Name string `json:"name" validate:"required"`
}

type FeedLocation struct {
	Address string `json:"address" validate:"required"`
}

// ValidatedRecord is one normalized feed row in original input order.
type ValidatedRecord struct {
	ProductName     string
	LocationAddress string
	RawPrice        json.RawMessage
}

type TriggerSyncRequest struct {
	FeedURL string `json:"feedUrl"`
}

type SyncRunResponse struct {
	ID             uint    `json:"id"`
	Status         string  `json:"status"`
	TriggeredBy    string  `json:"triggeredBy"`
	StartedAt      *string `json:"startedAt"`
	FinishedAt     *string `json:"finishedAt"`
	DurationMs     int64   `json:"durationMs"`
	RecordsSeen    int     `json:"recordsSeen"`
	RecordsApplied int     `json:"recordsApplied"`
	Message        string  `json:"message,omitempty"`
}

type SyncHistoryResponse struct {
	Items []SyncRunResponse `json:"items"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data []byte `json:"data"`
		ID   string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

type SyncPubSubPayload struct {
	RunId uint `json:"run_id"`
}
