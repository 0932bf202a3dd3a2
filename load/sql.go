package load

import (
	"strings"

	"github.com/teranos/civicload/warehouse"
)

const auditSQL = `INSERT INTO civicload_loads
    (load_id, run_id, dataset, target_table, rows_inserted, rows_updated, files_staged, loaded_at)
    VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

func quoteAll(names []string, qualifier string) []string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = qualifier + warehouse.QuoteIdent(n)
	}
	return out
}

func scratchInsertSQL(spec warehouse.TableSpec, scratch string) string {
	cols := append(quoteAll(spec.ColumnNames(), ""), warehouse.QuoteIdent(warehouse.LoadSeqColumn))
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return "INSERT INTO " + warehouse.QuoteIdent(scratch) + " (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")"
}

// dedupeSQL keeps the last row per natural key. GROUP BY treats NULL keys as equal.
func dedupeSQL(spec warehouse.TableSpec, scratch string) string {
	s := warehouse.QuoteIdent(scratch)
	seq := warehouse.QuoteIdent(warehouse.LoadSeqColumn)
	return "DELETE FROM " + s + " WHERE " + seq + " NOT IN (SELECT MAX(" + seq + ") FROM " + s +
		" GROUP BY " + strings.Join(quoteAll(spec.Key, ""), ", ") + ")"
}

// keyMatch is null-safe equality on every natural key column
func keyMatch(spec warehouse.TableSpec, left, right string) string {
	conds := make([]string, len(spec.Key))
	for i, k := range spec.Key {
		q := warehouse.QuoteIdent(k)
		conds[i] = left + "." + q + " IS NOT DISTINCT FROM " + right + "." + q
	}
	return strings.Join(conds, " AND ")
}

// updateSQL rewrites every target row whose natural key is in scratch.
// Its affected-row count is the number of matched rows.
func updateSQL(spec warehouse.TableSpec, scratch string) string {
	t := warehouse.QuoteIdent(spec.Table)
	nonKey := spec.NonKey()

	sets := make([]string, len(nonKey))
	for i, c := range nonKey {
		q := warehouse.QuoteIdent(c.Name)
		sets[i] = q + " = s." + q
	}

	return "UPDATE " + t + " SET " + strings.Join(sets, ", ") +
		" FROM " + warehouse.QuoteIdent(scratch) + " AS s" +
		" WHERE " + keyMatch(spec, t, "s")
}

// insertSQL adds scratch rows whose natural key is not yet in the target
func insertSQL(spec warehouse.TableSpec, scratch string) string {
	t := warehouse.QuoteIdent(spec.Table)
	cols := spec.ColumnNames()
	return "INSERT INTO " + t + " (" + strings.Join(quoteAll(cols, ""), ", ") + ")" +
		" SELECT " + strings.Join(quoteAll(cols, "s."), ", ") +
		" FROM " + warehouse.QuoteIdent(scratch) + " AS s" +
		" WHERE NOT EXISTS (SELECT 1 FROM " + t + " AS t WHERE " + keyMatch(spec, "t", "s") + ")"
}
