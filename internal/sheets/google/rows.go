package google

import (
	"fmt"
	"strconv"
	"strings"

	"tresorerie/internal/core"
)

// Header is written once at the top of an empty sheet. The transaction id
// stays in column A: it is the key used to skip rows already exported.
var Header = []any{"ID", "Date", "Type", "Entity", "Category", "Tag", "Status", "Amount", "Source", "User"}

// Row lays a transaction out in Header order. Amounts are plain euro numbers
// so the sheet can sum them.
func Row(tx core.Transaction, templateID int64) []any {
	source := "manual"
	if templateID != 0 {
		source = fmt.Sprintf("recurring #%d", templateID)
	}
	return []any{
		tx.ID,
		tx.Date.String(),
		string(tx.Type),
		tx.EntityName,
		tx.Category,
		tx.Tag,
		string(tx.Status),
		tx.Amount.Euros(),
		source,
		tx.OwnerID.String(),
	}
}

// exportedIDs reads the id column returned by the Sheets API. The header and
// anything that is not an id are skipped.
func exportedIDs(values [][]any) map[int64]int {
	ids := make(map[int64]int, len(values))
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		id, err := strconv.ParseInt(strings.TrimSpace(fmt.Sprint(row[0])), 10, 64)
		if err != nil {
			continue
		}
		ids[id] = i + 1
	}
	return ids
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}
