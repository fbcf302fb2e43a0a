package models

import (
	"context"

	"github.com/xuri/excelize/v2"
)

type priceListRow struct {
	ProductName string
	Address     string
	Price       int
}

// ExportPriceListXLSX renders the current association snapshot as a
// spreadsheet, one row per (product, location, price).
func (s *QueryService) ExportPriceListXLSX(ctx context.Context) (*excelize.File, error) {
	var rows []priceListRow
	err := s.db.WithContext(ctx).Table("location_products").
		Select("products.name AS product_name, locations.address AS address, location_products.price AS price").
		Joins("JOIN products ON products.id = location_products.product_id").
		Joins("JOIN locations ON locations.id = location_products.location_id").
		Order("products.name, locations.address").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	const sheet = "Price List"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	if err := f.SetSheetRow(sheet, "A1", &[]interface{}{"Product", "Location", "Price"}); err != nil {
		return nil, err
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheet, cell, &[]interface{}{row.ProductName, row.Address, row.Price}); err != nil {
			return nil, err
		}
	}
	return f, nil
}
