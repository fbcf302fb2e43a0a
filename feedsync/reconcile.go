package feedsync

import (
	"context"
	"fmt"

	"bitbucket.org/mmdatafocus/pharmfeed_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const insertBatchSize = 500

// ReconcileHook runs after a successful reconciliation has been committed.
// Hooks are best-effort; they cannot fail the run that fired them.
type ReconcileHook func(ctx context.Context, applied int)

// Reconciler makes the persisted entities and associations match one feed
// batch exactly. It never invents identifiers: names and addresses always
// resolve to store-assigned ids after insertion.
type Reconciler struct {
	db     *gorm.DB
	logger *logrus.Logger
	hooks  []ReconcileHook
}

func NewReconciler(db *gorm.DB, logger *logrus.Logger, hooks ...ReconcileHook) *Reconciler {
	return &Reconciler{db: db, logger: logger, hooks: hooks}
}

// Reconcile applies one batch in two passes and returns the number of
// associations inserted.
//
// Pass 1 resolves entities: unseen product names and location addresses are
// bulk-inserted (products first, then locations, each all-or-nothing), then
// both name→id indexes are reloaded so every record resolves.
//
// Pass 2 replaces the association snapshot: the table is wiped in its own
// commit, the batch is rescanned in input order (a bad price skips that
// record only; the first occurrence of a (product, location) pair wins), and
// the surviving rows are bulk-inserted in one commit. Between the wipe and
// the insert the table is observably empty to concurrent readers; runs are
// expected to be scheduled in off-hours and never overlap.
func (r *Reconciler) Reconcile(ctx context.Context, records []ValidatedRecord) (int, error) {
	productIDs, err := r.loadProductIndex(ctx)
	if err != nil {
		return 0, err
	}
	locationIDs, err := r.loadLocationIndex(ctx)
	if err != nil {
		return 0, err
	}

	// Queue unseen entities once, ignoring duplicates inside the batch.
	queuedNames := make(map[string]struct{})
	queuedAddresses := make(map[string]struct{})
	var newProducts []models.Product
	var newLocations []models.Location
	for _, rec := range records {
		if _, exists := productIDs[rec.ProductName]; !exists {
			if _, queued := queuedNames[rec.ProductName]; !queued {
				newProducts = append(newProducts, models.Product{Name: rec.ProductName})
				queuedNames[rec.ProductName] = struct{}{}
			}
		}
		if _, exists := locationIDs[rec.LocationAddress]; !exists {
			if _, queued := queuedAddresses[rec.LocationAddress]; !queued {
				newLocations = append(newLocations, models.Location{Address: rec.LocationAddress})
				queuedAddresses[rec.LocationAddress] = struct{}{}
			}
		}
	}

	if len(newProducts) > 0 {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&newProducts, insertBatchSize).Error
		})
		if err != nil {
			return 0, storeWriteError("insert products", err)
		}
	}
	if len(newLocations) > 0 {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&newLocations, insertBatchSize).Error
		})
		if err != nil {
			return 0, storeWriteError("insert locations", err)
		}
	}

	// Reload so freshly inserted entities resolve too.
	productIDs, err = r.loadProductIndex(ctx)
	if err != nil {
		return 0, err
	}
	locationIDs, err = r.loadLocationIndex(ctx)
	if err != nil {
		return 0, err
	}

	// The association table reflects only the latest batch: full replace,
	// not an incremental merge.
	err = r.db.WithContext(ctx).
		Session(&gorm.Session{AllowGlobalUpdate: true}).
		Delete(&models.LocationProduct{}).Error
	if err != nil {
		return 0, storeWriteError("clear associations", err)
	}

	type linkKey struct {
		productID  int
		locationID int
	}
	seen := make(map[linkKey]struct{})
	links := make([]models.LocationProduct, 0, len(records))
	for _, rec := range records {
		price, err := parsePrice(rec.RawPrice)
		if err != nil {
			r.logger.WithFields(logrus.Fields{
				"module":   "feedsync",
				"product":  rec.ProductName,
				"location": rec.LocationAddress,
			}).Warnf("skipping record: %v", err)
			continue
		}

		productID, ok := productIDs[rec.ProductName]
		if !ok {
			r.logRecordSkip(rec, "product did not resolve after entity pass")
			continue
		}
		locationID, ok := locationIDs[rec.LocationAddress]
		if !ok {
			r.logRecordSkip(rec, "location did not resolve after entity pass")
			continue
		}

		key := linkKey{productID: productID, locationID: locationID}
		if _, dup := seen[key]; dup {
			// First occurrence in input order wins.
			continue
		}
		seen[key] = struct{}{}
		links = append(links, models.LocationProduct{
			ProductId:  productID,
			LocationId: locationID,
			Price:      price,
		})
	}

	if len(links) > 0 {
		err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return tx.CreateInBatches(&links, insertBatchSize).Error
		})
		if err != nil {
			return 0, storeWriteError("insert associations", err)
		}
	}

	models.InvalidateProductNamesCache()
	for _, hook := range r.hooks {
		hook(ctx, len(links))
	}
	return len(links), nil
}

func (r *Reconciler) loadProductIndex(ctx context.Context) (map[string]int, error) {
	var products []models.Product
	if err := r.db.WithContext(ctx).Find(&products).Error; err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	idx := make(map[string]int, len(products))
	for _, p := range products {
		idx[p.Name] = p.ID
	}
	return idx, nil
}

func (r *Reconciler) loadLocationIndex(ctx context.Context) (map[string]int, error) {
	var locations []models.Location
	if err := r.db.WithContext(ctx).Find(&locations).Error; err != nil {
		return nil, fmt.Errorf("load locations: %w", err)
	}
	idx := make(map[string]int, len(locations))
	for _, l := range locations {
		idx[l.Address] = l.ID
	}
	return idx, nil
}

func (r *Reconciler) logRecordSkip(rec ValidatedRecord, reason string) {
	r.logger.WithFields(logrus.Fields{
		"module":   "feedsync",
		"product":  rec.ProductName,
		"location": rec.LocationAddress,
	}).Error("skipping record: " + reason)
}
