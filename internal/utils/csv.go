package utils

import (
	"encoding/csv"
	"fmt"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"krakenOrderTracker/internal/domain"
)

var fillCSVHeader = []string{"trade_id", "order_id", "pair", "side", "volume", "price", "fee", "cost", "executed_at"}

func WriteFillsToCSV(fills []*domain.Fill, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	// Write header
	writer.Write(fillCSVHeader)

	for _, f := range fills {
		writer.Write([]string{
			f.TradeID,
			f.OrderID,
			f.Pair,
			string(f.Side),
			f.Volume.String(),
			f.Price.String(),
			f.Fee.String(),
			f.Cost.String(),
			f.Time.UTC().Format(time.RFC3339Nano),
		})
	}
	return writer.Error()
}

func ReadFillsFromCSV(filename string) ([]*domain.Fill, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = len(fillCSVHeader)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, nil
	}

	// Skip header row
	fills := make([]*domain.Fill, 0, len(records)-1)
	for i, rec := range records[1:] {
		fill, err := fillFromRecord(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d of %s: %w", i+2, filename, err)
		}
		fills = append(fills, fill)
	}
	return fills, nil
}

func fillFromRecord(rec []string) (*domain.Fill, error) {
	volume, err := decimal.NewFromString(rec[4])
	if err != nil {
		return nil, fmt.Errorf("bad volume %q: %w", rec[4], err)
	}
	price, err := decimal.NewFromString(rec[5])
	if err != nil {
		return nil, fmt.Errorf("bad price %q: %w", rec[5], err)
	}
	fee, err := decimal.NewFromString(rec[6])
	if err != nil {
		return nil, fmt.Errorf("bad fee %q: %w", rec[6], err)
	}
	cost, err := decimal.NewFromString(rec[7])
	if err != nil {
		return nil, fmt.Errorf("bad cost %q: %w", rec[7], err)
	}
	executedAt, err := time.Parse(time.RFC3339Nano, rec[8])
	if err != nil {
		return nil, fmt.Errorf("bad executed_at %q: %w", rec[8], err)
	}
	return &domain.Fill{
		TradeID: rec[0],
		OrderID: rec[1],
		Pair:    rec[2],
		Side:    domain.OrderSide(rec[3]),
		Volume:  volume,
		Price:   price,
		Fee:     fee,
		Cost:    cost,
		Time:    executedAt,
	}, nil
}
