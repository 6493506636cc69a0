package filedrop

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"settlement-reconciler/internal/core/domain"
	"settlement-reconciler/pkg/money"
)

var requiredColumns = []string{"rail_batch_id", "sequence_no", "status_code", "amount", "currency", "remark"}

// parseCSV reads a result file with a header row. Column order is free;
// unknown columns are ignored. Rows that fail to convert are passed to
// skip and left out.
func parseCSV(r io.Reader, skip func(line int, err error)) ([]domain.ExternalStatusRecord, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range requiredColumns {
		if _, ok := cols[c]; !ok {
			return nil, fmt.Errorf("missing column %q", c)
		}
	}

	var out []domain.ExternalStatusRecord
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		get := func(name string) string {
			i, ok := cols[name]
			if !ok || i >= len(row) {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		rec, err := toRecord(get)
		if err != nil {
			skip(line, err)
			continue
		}
		out = append(out, rec)
	}
}

func toRecord(get func(string) string) (domain.ExternalStatusRecord, error) {
	currency := strings.ToUpper(get("currency"))
	rec := domain.ExternalStatusRecord{
		RailBatchID:  get("rail_batch_id"),
		SequenceNo:   get("sequence_no"),
		StatusCode:   get("status_code"),
		ErrorCode:    get("error_code"),
		ErrorMessage: get("error_message"),
		Currency:     currency,
		Remark:       get("remark"),
		ReturnReason: get("return_reason"),
		FeeCurrency:  strings.ToUpper(get("fee_currency")),
	}

	amount, err := money.ToMinor(get("amount"), currency)
	if err != nil {
		return rec, err
	}
	rec.Amount = amount

	if fee := get("fee_amount"); fee != "" {
		if rec.FeeCurrency == "" {
			rec.FeeCurrency = currency
		}
		if rec.FeeAmount, err = money.ToMinor(fee, rec.FeeCurrency); err != nil {
			return rec, fmt.Errorf("fee_amount: %w", err)
		}
	}
	if v := get("completed_at"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return rec, fmt.Errorf("completed_at: %w", err)
		}
		t = t.UTC()
		rec.CompletedAt = &t
	}
	if v := get("scheduled_for"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			return rec, fmt.Errorf("scheduled_for: %w", err)
		}
		rec.ScheduledFor = &t
	}
	return rec, nil
}
