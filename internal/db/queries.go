package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/croire045-rgb/collecte-plateform/internal/errors"
)

// ErrUniqueConstraint is returned when an insert violates a UNIQUE constraint.
var ErrUniqueConstraint = &errors.AppError{
	Code:    errors.ErrInvalidRequest,
	Status:  409,
	Message: "a record with this id already exists",
}

// Record is one JSON document of a collection.
type Record struct {
	ID         string
	Collection string
	Data       map[string]any
	CreatedAt  int64
}

// Range bounds a field from below (Op ">=") or above (Op "<=").
type Range struct {
	Field string
	Op    string
	Value string
}

// ListParams selects a page of a collection.
type ListParams struct {
	Collection string
	// Filters match a field's value rendered as text ("true", "42", "AEF").
	Filters map[string]string
	Ranges  []Range
	// Search matches any part of the record, case-insensitively for ASCII.
	Search string
	Limit  int
	Offset int
}

// StatRule describes one counter of a collection.
//
// With no field the rule counts every record. GroupBy counts records per
// distinct value of Field, reported as "name.value". Today counts records
// whose Field falls on the current UTC date. Otherwise records whose Field
// equals Equals are counted.
type StatRule struct {
	Name    string `json:"name"`
	Field   string `json:"field,omitempty"`
	Equals  any    `json:"equals,omitempty"`
	GroupBy bool   `json:"group_by,omitempty"`
	Today   bool   `json:"today,omitempty"`
}

var fieldPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+)*$`)

// jsonPath turns a dotted field name into an SQLite JSON path.
func jsonPath(field string) (string, error) {
	if !fieldPattern.MatchString(field) {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid field name %q", field))
	}
	return "$." + field, nil
}

// textExpr renders a JSON value as comparable text. Booleans become
// "true"/"false" instead of SQLite's 1/0.
const textExpr = `CASE json_type(data, ?) WHEN 'true' THEN 'true' WHEN 'false' THEN 'false' ELSE CAST(json_extract(data, ?) AS TEXT) END`

// Insert stores a new record. The record id is also written to data["id"].
func Insert(db *sql.DB, r *Record) error {
	if r.ID == "" || r.Collection == "" {
		return errors.NewInvalidRequest("record needs an id and a collection")
	}
	if r.Data == nil {
		r.Data = map[string]any{}
	}
	if _, ok := r.Data["id"]; !ok {
		r.Data["id"] = r.ID
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = time.Now().Unix()
	}
	data, err := json.Marshal(r.Data)
	if err != nil {
		return errors.NewInternal(err)
	}

	_, err = db.Exec(`INSERT INTO records (id, collection, data, created_at) VALUES (?, ?, ?, ?)`,
		r.ID, r.Collection, string(data), r.CreatedAt)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrUniqueConstraint
		}
		return errors.NewInternal(err)
	}
	return nil
}

// isUniqueConstraintError checks if the error is a SQLite UNIQUE constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	// SQLite reports both UNIQUE and PRIMARY KEY violations this way
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Get retrieves one record.
func Get(db *sql.DB, collection, id string) (*Record, error) {
	row := db.QueryRow(`SELECT id, collection, data, created_at FROM records WHERE collection = ? AND id = ?`,
		collection, id)
	r, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFound("record", id)
	}
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	return r, nil
}

// List returns one page of matching records, newest first, and the number
// of records matching overall.
func List(db *sql.DB, p ListParams) ([]Record, int, error) {
	where, args, err := buildWhere(p)
	if err != nil {
		return nil, 0, err
	}

	var total int
	if err := db.QueryRow("SELECT COUNT(*) FROM records WHERE "+where, args...).Scan(&total); err != nil {
		return nil, 0, errors.NewInternal(err)
	}

	query := "SELECT id, collection, data, created_at FROM records WHERE " + where +
		" ORDER BY created_at DESC, id DESC"
	if p.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, p.Limit, p.Offset)
	}

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, 0, errors.NewInternal(err)
		}
		out = append(out, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, errors.NewInternal(err)
	}
	return out, total, nil
}

func buildWhere(p ListParams) (string, []any, error) {
	clauses := []string{"collection = ?"}
	args := []any{p.Collection}

	names := make([]string, 0, len(p.Filters))
	for name := range p.Filters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		path, err := jsonPath(name)
		if err != nil {
			return "", nil, err
		}
		clauses = append(clauses, textExpr+" = ?")
		args = append(args, path, path, p.Filters[name])
	}

	for _, rg := range p.Ranges {
		path, err := jsonPath(rg.Field)
		if err != nil {
			return "", nil, err
		}
		switch rg.Op {
		case ">=":
			clauses = append(clauses, "substr(CAST(json_extract(data, ?) AS TEXT), 1, 10) >= ?")
		case "<=":
			clauses = append(clauses, "substr(CAST(json_extract(data, ?) AS TEXT), 1, 10) <= ?")
		default:
			return "", nil, errors.NewInvalidRequest(fmt.Sprintf("invalid range operator %q", rg.Op))
		}
		args = append(args, path, rg.Value)
	}

	if s := strings.TrimSpace(p.Search); s != "" {
		clauses = append(clauses, `data LIKE '%' || ? || '%' ESCAPE '\'`)
		args = append(args, escapeLike(s))
	}

	return strings.Join(clauses, " AND "), args, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// Count returns the number of records in a collection.
func Count(db *sql.DB, collection string) (int, error) {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM records WHERE collection = ?`, collection).Scan(&n); err != nil {
		return 0, errors.NewInternal(err)
	}
	return n, nil
}

// Update merges set into a record's data.
func Update(db *sql.DB, collection, id string, set map[string]any) (*Record, error) {
	if len(set) == 0 {
		return Get(db, collection, id)
	}

	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var pairs []string
	var args []any
	for _, k := range keys {
		path, err := jsonPath(k)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(set[k])
		if err != nil {
			return nil, errors.NewInternal(err)
		}
		pairs = append(pairs, "?, json(?)")
		args = append(args, path, string(v))
	}
	args = append(args, collection, id)

	query := "UPDATE records SET data = json_set(data, " + strings.Join(pairs, ", ") + ") WHERE collection = ? AND id = ?"
	res, err := db.Exec(query, args...)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, errors.NewNotFound("record", id)
	}
	return Get(db, collection, id)
}

// Delete removes a record.
func Delete(db *sql.DB, collection, id string) error {
	res, err := db.Exec(`DELETE FROM records WHERE collection = ? AND id = ?`, collection, id)
	if err != nil {
		return errors.NewInternal(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.NewInternal(err)
	}
	if n == 0 {
		return errors.NewNotFound("record", id)
	}
	return nil
}

// SetStatRules replaces the counters of a collection.
func SetStatRules(db *sql.DB, collection string, rules []StatRule) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.NewInternal(err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.Exec(`DELETE FROM stat_rules WHERE collection = ?`, collection); err != nil {
		return errors.NewInternal(err)
	}
	for i, rule := range rules {
		if rule.Name == "" {
			return errors.NewInvalidRequest("stat rule needs a name")
		}
		if rule.Field != "" {
			if _, err := jsonPath(rule.Field); err != nil {
				return err
			}
		}
		data, err := json.Marshal(rule)
		if err != nil {
			return errors.NewInternal(err)
		}
		if _, err := tx.Exec(`INSERT INTO stat_rules (collection, name, rule, position) VALUES (?, ?, ?, ?)`,
			collection, rule.Name, string(data), i); err != nil {
			if isUniqueConstraintError(err) {
				return errors.NewInvalidRequest(fmt.Sprintf("duplicate stat rule %q", rule.Name))
			}
			return errors.NewInternal(err)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.NewInternal(err)
	}
	return nil
}

// StatRules returns the counters of a collection in definition order.
func StatRules(db *sql.DB, collection string) ([]StatRule, error) {
	rows, err := db.Query(`SELECT rule FROM stat_rules WHERE collection = ? ORDER BY position`, collection)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	defer rows.Close()

	var out []StatRule
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, errors.NewInternal(err)
		}
		var rule StatRule
		if err := json.Unmarshal([]byte(raw), &rule); err != nil {
			return nil, errors.NewInternal(err)
		}
		out = append(out, rule)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternal(err)
	}
	return out, nil
}

// Stats evaluates the counters of a collection over all its records.
func Stats(db *sql.DB, collection string, now time.Time) (map[string]int, error) {
	rules, err := StatRules(db, collection)
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		return nil, nil
	}

	out := make(map[string]int, len(rules))
	for _, rule := range rules {
		if err := evalRule(db, collection, rule, now, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func evalRule(db *sql.DB, collection string, rule StatRule, now time.Time, out map[string]int) error {
	if rule.Field == "" {
		n, err := Count(db, collection)
		if err != nil {
			return err
		}
		out[rule.Name] = n
		return nil
	}

	path, err := jsonPath(rule.Field)
	if err != nil {
		return err
	}

	var n int
	switch {
	case rule.GroupBy:
		rows, err := db.Query(`SELECT `+textExpr+` AS v, COUNT(*) FROM records
			WHERE collection = ? AND json_extract(data, ?) IS NOT NULL GROUP BY v`,
			path, path, collection, path)
		if err != nil {
			return errors.NewInternal(err)
		}
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v, &n); err != nil {
				return errors.NewInternal(err)
			}
			out[rule.Name+"."+v] = n
		}
		if err := rows.Err(); err != nil {
			return errors.NewInternal(err)
		}
		return nil
	case rule.Today:
		err = db.QueryRow(`SELECT COUNT(*) FROM records
			WHERE collection = ? AND substr(CAST(json_extract(data, ?) AS TEXT), 1, 10) = ?`,
			collection, path, now.UTC().Format("2006-01-02")).Scan(&n)
	default:
		want, mErr := json.Marshal(rule.Equals)
		if mErr != nil {
			return errors.NewInternal(mErr)
		}
		err = db.QueryRow(`SELECT COUNT(*) FROM records
			WHERE collection = ? AND json_extract(data, ?) = json_extract(json(?), '$')`,
			collection, path, string(want)).Scan(&n)
	}
	if err != nil {
		return errors.NewInternal(err)
	}
	out[rule.Name] = n
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var r Record
	var data string
	if err := s.Scan(&r.ID, &r.Collection, &data, &r.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &r.Data); err != nil {
		return nil, fmt.Errorf("record %s: %w", r.ID, err)
	}
	return &r, nil
}
