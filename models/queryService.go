package models

import (
	"context"
	"errors"
	"strings"
	"time"

	"bitbucket.org/mmdatafocus/pharmfeed_backend/config"
	"bitbucket.org/mmdatafocus/pharmfeed_backend/utils"
	"gorm.io/gorm"
)

const productNamesCacheKey = "pharmfeed:product_names"

// QueryService answers read-only lookups over the reconciled state. It holds
// a long-lived store handle; no ambient session is reached from here.
type QueryService struct {
	db *gorm.DB
}

func NewQueryService(db *gorm.DB) *QueryService {
	return &QueryService{db: db}
}

// LocationsForProduct lists the locations selling the first product whose
// name contains namePattern (case-insensitive). No matching product yields an
// empty slice, not an error.
func (s *QueryService) LocationsForProduct(ctx context.Context, namePattern string) ([]Location, error) {
	product, err := s.findProductByPattern(ctx, namePattern)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return []Location{}, nil
	}

	var locations []Location
	err = s.db.WithContext(ctx).
		Joins("JOIN location_products ON location_products.location_id = locations.id").
		Where("location_products.product_id = ?", product.ID).
		Order("locations.id").
		Find(&locations).Error
	if err != nil {
		return nil, err
	}
	return locations, nil
}

// PriceAt returns the price of a product (substring match on name) at a
// location (exact address match). A missing product, location, or association
// is a nil price, not an error.
func (s *QueryService) PriceAt(ctx context.Context, productName string, locationAddress string) (*int, error) {
	product, err := s.findProductByPattern(ctx, productName)
	if err != nil {
		return nil, err
	}
	if product == nil {
		return nil, nil
	}

	var location Location
	err = s.db.WithContext(ctx).
		Where("address = ?", strings.TrimSpace(locationAddress)).
		Take(&location).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var link LocationProduct
	err = s.db.WithContext(ctx).
		Where("product_id = ? AND location_id = ?", product.ID, location.ID).
		Take(&link).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	price := link.Price
	return &price, nil
}

// AllProductNames returns every product name in insertion order. An empty
// store is utils.ErrorRecordNotFound, never an empty slice; callers rely on
// that distinction.
func (s *QueryService) AllProductNames(ctx context.Context) ([]string, error) {
	var names []string
	if ok, err := config.GetRedisObject(productNamesCacheKey, &names); err == nil && ok && len(names) > 0 {
		return names, nil
	}

	if err := s.db.WithContext(ctx).Model(&Product{}).Order("id").Pluck("name", &names).Error; err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	_ = config.SetRedisObject(productNamesCacheKey, names, time.Hour)
	return names, nil
}

// ProductNamesMatching returns the names of all products whose name contains
// the pattern (case-insensitive). No match is utils.ErrorRecordNotFound.
func (s *QueryService) ProductNamesMatching(ctx context.Context, namePattern string) ([]string, error) {
	var names []string
	err := s.db.WithContext(ctx).Model(&Product{}).
		Where("LOWER(name) LIKE ?", likePattern(namePattern)).
		Order("id").
		Pluck("name", &names).Error
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, utils.ErrorRecordNotFound
	}
	return names, nil
}

// InvalidateProductNamesCache drops the cached name list. The reconciler
// calls this after every successful run.
func InvalidateProductNamesCache() {
	_ = config.RemoveRedisKey(productNamesCacheKey)
}

func (s *QueryService) findProductByPattern(ctx context.Context, namePattern string) (*Product, error) {
	var product Product
	err := s.db.WithContext(ctx).
		Where("LOWER(name) LIKE ?", likePattern(namePattern)).
		Order("id").
		First(&product).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func likePattern(pattern string) string {
	return "%" + strings.ToLower(strings.TrimSpace(pattern)) + "%"
}
