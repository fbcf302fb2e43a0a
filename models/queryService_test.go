package models_test

import (
	"context"
	"errors"
	"testing"

	"bitbucket.org/mmdatafocus/pharmfeed_backend/models"
	"bitbucket.org/mmdatafocus/pharmfeed_backend/utils"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedCatalog(t *testing.T, db *gorm.DB) {
	t.Helper()
	products := []models.Product{
		{Name: "Aspirin"},
		{Name: "Ibuprofen"},
		{Name: "Aspirin Forte"},
	}
	if err := db.Create(&products).Error; err != nil {
		t.Fatalf("seed products: %v", err)
	}
	locations := []models.Location{
		{Address: "1 Main St"},
		{Address: "2 High St"},
	}
	if err := db.Create(&locations).Error; err != nil {
		t.Fatalf("seed locations: %v", err)
	}
	links := []models.LocationProduct{
		{ProductId: products[0].ID, LocationId: locations[0].ID, Price: 10},
		{ProductId: products[0].ID, LocationId: locations[1].ID, Price: 11},
		{ProductId: products[1].ID, LocationId: locations[1].ID, Price: 12},
	}
	if err := db.Create(&links).Error; err != nil {
		t.Fatalf("seed associations: %v", err)
	}
}

func TestLocationsForProductMatchesCaseInsensitiveSubstring(t *testing.T) {
	db := openTestDB(t)
	seedCatalog(t, db)
	queries := models.NewQueryService(db)

	locations, err := queries.LocationsForProduct(context.Background(), "aSpIr")
	if err != nil {
		t.Fatalf("LocationsForProduct: %v", err)
	}
	if len(locations) != 2 {
		t.Fatalf("locations = %d; want 2", len(locations))
	}
	if locations[0].Address != "1 Main St" || locations[1].Address != "2 High St" {
		t.Fatalf("unexpected addresses: %+v", locations)
	}
}

func TestLocationsForProductNoMatchIsEmptyNotError(t *testing.T) {
	db := openTestDB(t)
	seedCatalog(t, db)
	queries := models.NewQueryService(db)

	locations, err := queries.LocationsForProduct(context.Background(), "no such product")
	if err != nil {
		t.Fatalf("LocationsForProduct: %v", err)
	}
	if locations == nil || len(locations) != 0 {
		t.Fatalf("expected empty slice, got %v", locations)
	}
}

func TestPriceAt(t *testing.T) {
	db := openTestDB(t)
	seedCatalog(t, db)
	queries := models.NewQueryService(db)
	ctx := context.Background()

	price, err := queries.PriceAt(ctx, "ibupro", "2 High St")
	if err != nil {
		t.Fatalf("PriceAt: %v", err)
	}
	if price == nil || *price != 12 {
		t.Fatalf("price = %v; want 12", price)
	}

	// Missing association, location, and product are all nil, never an error.
	for _, q := range []struct{ product, address string }{
		{"Ibuprofen", "1 Main St"},
		{"Aspirin", "9 Nowhere Rd"},
		{"no such product", "1 Main St"},
	} {
		price, err := queries.PriceAt(ctx, q.product, q.address)
		if err != nil {
			t.Fatalf("PriceAt(%s, %s): %v", q.product, q.address, err)
		}
		if price != nil {
			t.Fatalf("PriceAt(%s, %s) = %d; want nil", q.product, q.address, *price)
		}
	}
}

func TestAllProductNames(t *testing.T) {
	db := openTestDB(t)
	seedCatalog(t, db)
	queries := models.NewQueryService(db)

	names, err := queries.AllProductNames(context.Background())
	if err != nil {
		t.Fatalf("AllProductNames: %v", err)
	}
	want := []string{"Aspirin", "Ibuprofen", "Aspirin Forte"}
	if len(names) != len(want) {
		t.Fatalf("names = %v; want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("names = %v; want %v (insertion order)", names, want)
		}
	}
}

func TestAllProductNamesEmptyStore(t *testing.T) {
	db := openTestDB(t)
	queries := models.NewQueryService(db)

	_, err := queries.AllProductNames(context.Background())
	if !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound, got %v", err)
	}
}

func TestProductNamesMatching(t *testing.T) {
	db := openTestDB(t)
	seedCatalog(t, db)
	queries := models.NewQueryService(db)
	ctx := context.Background()

	names, err := queries.ProductNamesMatching(ctx, "ASPIRIN")
	if err != nil {
		t.Fatalf("ProductNamesMatching: %v", err)
	}
	if len(names) != 2 || names[0] != "Aspirin" || names[1] != "Aspirin Forte" {
		t.Fatalf("names = %v; want [Aspirin, Aspirin Forte]", names)
	}

	if _, err := queries.ProductNamesMatching(ctx, "zzz"); !errors.Is(err, utils.ErrorRecordNotFound) {
		t.Fatalf("expected ErrorRecordNotFound, got %v", err)
	}
}
