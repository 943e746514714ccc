package analytics

import (
	"bytes"
	"encoding/json"
	"fmt"

	"tresorerie/internal/core"
)

// RevenueRow is the income of one month split by category. Amounts is sparse:
// a category with no income that month has no entry.
type RevenueRow struct {
	Month   string
	Amounts map[string]core.Money
}

// MarshalJSON flattens the row into {"month":"Jan","Salary":1200.5,...} with
// category keys in lexical order.
func (r RevenueRow) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"month":`)
	month, err := json.Marshal(r.Month)
	if err != nil {
		return nil, err
	}
	buf.Write(month)

	for _, category := range sortedKeys(r.Amounts) {
		if category == "month" {
			return nil, fmt.Errorf("category name %q collides with month key", category)
		}
		key, err := json.Marshal(category)
		if err != nil {
			return nil, err
		}
		amount, err := r.Amounts[category].MarshalJSON()
		if err != nil {
			return nil, err
		}
		buf.WriteByte(',')
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(amount)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads the flattened form back.
func (r *RevenueRow) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.Month = ""
	r.Amounts = make(map[string]core.Money, len(raw))
	for k, v := range raw {
		if k == "month" {
			if err := json.Unmarshal(v, &r.Month); err != nil {
				return fmt.Errorf("decode month: %w", err)
			}
			continue
		}
		var m core.Money
		if err := m.UnmarshalJSON(v); err != nil {
			return fmt.Errorf("decode %s: %w", k, err)
		}
		r.Amounts[k] = m
	}
	return nil
}

// CategoryRevenueBreakdown sums Income transactions per short month name
// ("Jan") and category. Rows are ordered most recent month first by the
// calendar table. Transactions of the same month in different years share a
// row.
func CategoryRevenueBreakdown(txs []core.Transaction) []RevenueRow {
	var months [12]map[string]core.Money
	for _, tx := range txs {
		if tx.Type != core.Income || tx.Date.IsZero() {
			continue
		}
		i := tx.Date.Month() - 1
		if months[i] == nil {
			months[i] = make(map[string]core.Money)
		}
		months[i][tx.Category] = months[i][tx.Category].Add(tx.Amount)
	}

	var out []RevenueRow
	for i := len(months) - 1; i >= 0; i-- {
		if months[i] == nil {
			continue
		}
		out = append(out, RevenueRow{Month: ShortMonthName(i + 1), Amounts: months[i]})
	}
	return out
}
