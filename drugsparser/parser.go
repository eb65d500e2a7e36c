package drugsparser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/giygas/drug-portal-api/drugsparser/entities"
)

// Raw shard keys as published on the CDN
const (
	rawID             = "id"
	rawName           = "name"
	rawPrice          = "price(₹)"
	rawDiscontinued   = "Is_discontinued"
	rawManufacturer   = "manufacturer_name"
	rawType           = "type"
	rawPackSizeLabel  = "pack_size_label"
	rawComposition1   = "short_composition1"
	rawComposition2   = "short_composition2"
	discontinuedTruth = "TRUE"
)

// ParseShard decodes a letter shard body into normalized records.
// Entries without an id are dropped and counted in skipped.
func ParseShard(body []byte) (records []entities.DrugRecord, skipped int, err error) {
	var raw []map[string]any
	if err := sonic.Unmarshal(body, &raw); err != nil {
		return nil, 0, fmt.Errorf("failed to decode shard: %w", err)
	}

	records = make([]entities.DrugRecord, 0, len(raw))
	for _, entry := range raw {
		record, ok := normalizeRecord(entry)
		if !ok {
			skipped++
			continue
		}
		records = append(records, record)
	}

	return records, skipped, nil
}

func normalizeRecord(entry map[string]any) (entities.DrugRecord, bool) {
	id := stringField(entry, rawID)
	if id == "" {
		return entities.DrugRecord{}, false
	}

	record := entities.DrugRecord{
		ID:                   id,
		Name:                 stringField(entry, rawName),
		Price:                stringField(entry, rawPrice),
		IsDiscontinued:       discontinuedField(entry[rawDiscontinued]),
		ManufacturerName:     stringField(entry, rawManufacturer),
		Type:                 stringField(entry, rawType),
		PackSizeLabel:        stringField(entry, rawPackSizeLabel),
		CompositionPrimary:   stringField(entry, rawComposition1),
		CompositionSecondary: stringField(entry, rawComposition2),
	}
	record.ComputeSearchText()

	return record, true
}

// stringField renders scalars as strings; numbers keep their shortest form
func stringField(entry map[string]any, key string) string {
	switch v := entry[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

func discontinuedField(v any) bool {
	switch flag := v.(type) {
	case string:
		return strings.TrimSpace(flag) == discontinuedTruth
	case bool:
		return flag
	default:
		return false
	}
}
