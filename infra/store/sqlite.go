package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ovenlight/expeditor/core/model"
	corestore "github.com/ovenlight/expeditor/core/store"
)

// SQLiteStore persists records to a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS orders (
    id TEXT PRIMARY KEY,
    number TEXT,
    status TEXT NOT NULL,
    total REAL NOT NULL DEFAULT 0,
    issues TEXT,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_orders_status ON orders(status);
CREATE TABLE IF NOT EXISTS line_items (
    id TEXT PRIMARY KEY,
    order_id TEXT NOT NULL,
    item_type TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    price REAL NOT NULL DEFAULT 0,
    seq INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_line_items_order ON line_items(order_id);
CREATE TABLE IF NOT EXISTS kitchens (
    id TEXT PRIMARY KEY,
    name TEXT,
    active INTEGER NOT NULL DEFAULT 1,
    capacity INTEGER NOT NULL DEFAULT 0
);
CREATE TABLE IF NOT EXISTS capabilities (
    item_type TEXT NOT NULL,
    kitchen_id TEXT NOT NULL,
    PRIMARY KEY (item_type, kitchen_id)
);
CREATE TABLE IF NOT EXISTS assignments (
    id TEXT PRIMARY KEY,
    line_item_id TEXT NOT NULL,
    order_id TEXT NOT NULL,
    kitchen_id TEXT NOT NULL,
    item_type TEXT NOT NULL,
    quantity INTEGER NOT NULL,
    state TEXT NOT NULL,
    assigned_at INTEGER,
    completed_at INTEGER,
    UNIQUE (order_id, line_item_id)
);
CREATE INDEX IF NOT EXISTS idx_assignments_kitchen ON assignments(kitchen_id, state);
CREATE TABLE IF NOT EXISTS stock (
    item_type TEXT PRIMARY KEY,
    record TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS alerts (
    id TEXT PRIMARY KEY,
    item_type TEXT NOT NULL,
    severity TEXT NOT NULL,
    message TEXT,
    resolved INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL,
    resolved_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_alerts_item ON alerts(item_type, resolved);
CREATE TABLE IF NOT EXISTS replenishments (
    id TEXT PRIMARY KEY,
    item_type TEXT NOT NULL,
    quantity REAL NOT NULL,
    priority TEXT NOT NULL,
    lead_time_seconds INTEGER NOT NULL,
    reason TEXT,
    received INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
`

// NewSQLiteStore opens or creates the database at path and ensures schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		if cerr := db.Close(); cerr != nil {
			return nil, fmt.Errorf("close db: %v (schema err: %w)", cerr, err)
		}
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ScanOrdersByStatus(ctx context.Context, status model.OrderStatus) ([]model.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, number, status, total, created_at FROM orders WHERE status = ? ORDER BY created_at`,
		status.String())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(r rowScanner) (model.Order, error) {
	var (
		o       model.Order
		status  string
		created int64
	)
	if err := r.Scan(&o.ID, &o.Number, &status, &o.Total, &created); err != nil {
		return model.Order{}, err
	}
	st, err := model.ParseOrderStatus(status)
	if err != nil {
		return model.Order{}, err
	}
	o.Status = st
	o.CreatedAt = time.Unix(created, 0)
	return o, nil
}

func (s *SQLiteStore) GetOrder(ctx context.Context, id string) (model.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, number, status, total, created_at FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Order{}, corestore.ErrNotFound
	}
	return o, err
}

func (s *SQLiteStore) SetOrderStatus(ctx context.Context, id string, status model.OrderStatus) error {
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = ? WHERE id = ?`, status.String(), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) AttachOrderIssues(ctx context.Context, id string, issues []model.ItemIssue) error {
	b, err := json.Marshal(issues)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET issues = ? WHERE id = ?`, string(b), id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) OrderIssues(ctx context.Context, id string) ([]model.ItemIssue, error) {
	var raw sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT issues FROM orders WHERE id = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, corestore.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var issues []model.ItemIssue
	if err := json.Unmarshal([]byte(raw.String), &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (s *SQLiteStore) GetLineItems(ctx context.Context, orderID string) ([]model.LineItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, order_id, item_type, quantity, price FROM line_items WHERE order_id = ? ORDER BY seq`,
		orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.LineItem
	for rows.Next() {
		var li model.LineItem
		if err := rows.Scan(&li.ID, &li.OrderID, &li.ItemType, &li.Quantity, &li.Price); err != nil {
			return nil, err
		}
		out = append(out, li)
	}
	return out, rows.Err()
}

// InsertOrder writes an order and its line items in one transaction. Used by
// the intake boundary and by seeding.
func (s *SQLiteStore) InsertOrder(ctx context.Context, o model.Order, items []model.LineItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO orders (id, number, status, total, created_at) VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.Number, o.Status.String(), o.Total, o.CreatedAt.Unix()); err != nil {
		return err
	}
	for i, li := range items {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO line_items (id, order_id, item_type, quantity, price, seq) VALUES (?, ?, ?, ?, ?, ?)`,
			li.ID, o.ID, li.ItemType, li.Quantity, li.Price, i); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// UpsertKitchen writes a kitchen and its capability list.
func (s *SQLiteStore) UpsertKitchen(ctx context.Context, k model.Kitchen, itemTypes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO kitchens (id, name, active, capacity) VALUES (?, ?, ?, ?)`,
		k.ID, k.Name, boolToInt(k.Active), k.Capacity); err != nil {
		return err
	}
	for _, it := range itemTypes {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO capabilities (item_type, kitchen_id) VALUES (?, ?)`,
			it, k.ID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) ListKitchens(ctx context.Context) ([]model.Kitchen, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, active, capacity FROM kitchens ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Kitchen
	for rows.Next() {
		var (
			k      model.Kitchen
			active int
		)
		if err := rows.Scan(&k.ID, &k.Name, &active, &k.Capacity); err != nil {
			return nil, err
		}
		k.Active = active != 0
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetCapableKitchens(ctx context.Context, itemType string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT kitchen_id FROM capabilities WHERE item_type = ? ORDER BY kitchen_id`, itemType)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetAssignment(ctx context.Context, id string) (model.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, line_item_id, order_id, kitchen_id, item_type, quantity, state, assigned_at, completed_at
         FROM assignments WHERE id = ?`, id)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, corestore.ErrNotFound
	}
	return a, err
}

func (s *SQLiteStore) FindAssignment(ctx context.Context, orderID, lineItemID string) (model.Assignment, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, line_item_id, order_id, kitchen_id, item_type, quantity, state, assigned_at, completed_at
         FROM assignments WHERE order_id = ? AND line_item_id = ?`, orderID, lineItemID)
	a, err := scanAssignment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Assignment{}, corestore.ErrNotFound
	}
	return a, err
}

func scanAssignment(r rowScanner) (model.Assignment, error) {
	var (
		a                       model.Assignment
		state                   string
		assignedAt, completedAt sql.NullInt64
	)
	if err := r.Scan(&a.ID, &a.LineItemID, &a.OrderID, &a.KitchenID, &a.ItemType, &a.Quantity, &state, &assignedAt, &completedAt); err != nil {
		return model.Assignment{}, err
	}
	st, err := model.ParseAssignmentState(state)
	if err != nil {
		return model.Assignment{}, err
	}
	a.State = st
	if assignedAt.Valid {
		a.AssignedAt = time.Unix(assignedAt.Int64, 0)
	}
	if completedAt.Valid {
		a.CompletedAt = time.Unix(completedAt.Int64, 0)
	}
	return a, nil
}

// UpsertAssignment merges on the (order, line-item) unique key so
// re-dispatching never duplicates an assignment.
func (s *SQLiteStore) UpsertAssignment(ctx context.Context, a model.Assignment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assignments (id, line_item_id, order_id, kitchen_id, item_type, quantity, state, assigned_at, completed_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (order_id, line_item_id) DO UPDATE SET
             kitchen_id = excluded.kitchen_id,
             state = excluded.state,
             assigned_at = excluded.assigned_at`,
		a.ID, a.LineItemID, a.OrderID, a.KitchenID, a.ItemType, a.Quantity,
		a.State.String(), nullUnix(a.AssignedAt), nullUnix(a.CompletedAt))
	return err
}

func (s *SQLiteStore) ListAssignmentsByOrder(ctx context.Context, orderID string) ([]model.Assignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, line_item_id, order_id, kitchen_id, item_type, quantity, state, assigned_at, completed_at
         FROM assignments WHERE order_id = ? ORDER BY line_item_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) CountNonTerminalAssignments(ctx context.Context, kitchenID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assignments WHERE kitchen_id = ? AND state != 'completed'`,
		kitchenID).Scan(&n)
	return n, err
}

// SwapAssignmentState is the row-level compare-and-set guarding against lost
// updates between a dispatcher reassignment and a concurrent worker signal.
func (s *SQLiteStore) SwapAssignmentState(ctx context.Context, id string, from, to model.AssignmentState, assignedAt, completedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assignments SET state = ?,
            assigned_at = COALESCE(?, assigned_at),
            completed_at = COALESCE(?, completed_at)
         WHERE id = ? AND state = ?`,
		to.String(), nullUnix(assignedAt), nullUnix(completedAt), id, from.String())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		// Distinguish a missing row from a state mismatch.
		var exists int
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assignments WHERE id = ?`, id).Scan(&exists); err != nil {
			return false, err
		}
		if exists == 0 {
			return false, corestore.ErrNotFound
		}
		return false, nil
	}
	return true, nil
}

func (s *SQLiteStore) GetStockRecord(ctx context.Context, itemType string) (model.StockRecord, error) {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT record FROM stock WHERE item_type = ?`, itemType).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return model.StockRecord{}, corestore.ErrNotFound
	}
	if err != nil {
		return model.StockRecord{}, err
	}
	var rec stockRow
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return model.StockRecord{}, err
	}
	return rec.toModel(itemType), nil
}

// stockRow is the JSON shape of a stock record, usage history included.
type stockRow struct {
	Current      float64             `json:"current"`
	Capacity     float64             `json:"capacity"`
	CriticalFrac float64             `json:"critical_frac"`
	LowFrac      float64             `json:"low_frac"`
	ReorderFrac  float64             `json:"reorder_frac"`
	Unit         string              `json:"unit"`
	Usage        []model.UsageSample `json:"usage,omitempty"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

func (r stockRow) toModel(itemType string) model.StockRecord {
	return model.StockRecord{
		ItemType:     itemType,
		Current:      r.Current,
		Capacity:     r.Capacity,
		CriticalFrac: r.CriticalFrac,
		LowFrac:      r.LowFrac,
		ReorderFrac:  r.ReorderFrac,
		Unit:         r.Unit,
		Usage:        r.Usage,
		UpdatedAt:    r.UpdatedAt,
	}
}

func (s *SQLiteStore) PutStockRecord(ctx context.Context, rec model.StockRecord) error {
	row := stockRow{
		Current:      rec.Current,
		Capacity:     rec.Capacity,
		CriticalFrac: rec.CriticalFrac,
		LowFrac:      rec.LowFrac,
		ReorderFrac:  rec.ReorderFrac,
		Unit:         rec.Unit,
		Usage:        rec.Usage,
		UpdatedAt:    rec.UpdatedAt,
	}
	b, err := json.Marshal(row)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO stock (item_type, record) VALUES (?, ?)
         ON CONFLICT (item_type) DO UPDATE SET record = excluded.record`,
		rec.ItemType, string(b))
	return err
}

func (s *SQLiteStore) ListStockRecords(ctx context.Context) ([]model.StockRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT item_type, record FROM stock ORDER BY item_type`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.StockRecord
	for rows.Next() {
		var (
			itemType string
			raw      string
		)
		if err := rows.Scan(&itemType, &raw); err != nil {
			return nil, err
		}
		var rec stockRow
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, err
		}
		out = append(out, rec.toModel(itemType))
	}
	return out, rows.Err()
}

func (s *SQLiteStore) InsertAlert(ctx context.Context, a model.Alert) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO alerts (id, item_type, severity, message, resolved, created_at, resolved_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.ItemType, a.Severity.String(), a.Message, boolToInt(a.Resolved),
		a.CreatedAt.Unix(), nullUnix(a.ResolvedAt))
	return err
}

func (s *SQLiteStore) UnresolvedAlerts(ctx context.Context, itemType string) ([]model.Alert, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, item_type, severity, message, created_at FROM alerts
         WHERE item_type = ? AND resolved = 0 ORDER BY created_at`, itemType)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.Alert
	for rows.Next() {
		var (
			a       model.Alert
			sev     string
			created int64
		)
		if err := rows.Scan(&a.ID, &a.ItemType, &sev, &a.Message, &created); err != nil {
			return nil, err
		}
		severity, err := model.ParseAlertSeverity(sev)
		if err != nil {
			return nil, err
		}
		a.Severity = severity
		a.CreatedAt = time.Unix(created, 0)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) ResolveAlerts(ctx context.Context, itemType string, above model.AlertSeverity, at time.Time) (int, error) {
	var severities []any
	for sev := model.SeverityInfo; sev <= model.SeverityCritical; sev++ {
		if sev > above {
			severities = append(severities, sev.String())
		}
	}
	if len(severities) == 0 {
		return 0, nil
	}
	query := `UPDATE alerts SET resolved = 1, resolved_at = ? WHERE item_type = ? AND resolved = 0 AND severity IN (?`
	args := []any{at.Unix(), itemType}
	args = append(args, severities[0])
	for _, sev := range severities[1:] {
		query += `, ?`
		args = append(args, sev)
	}
	query += `)`
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) InsertReplenishment(ctx context.Context, r model.ReplenishmentRequest) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO replenishments (id, item_type, quantity, priority, lead_time_seconds, reason, received, created_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ItemType, r.Quantity, r.Priority.String(), int64(r.LeadTime.Seconds()),
		r.Reason, boolToInt(r.Received), r.CreatedAt.Unix())
	return err
}

func (s *SQLiteStore) PendingReplenishments(ctx context.Context, itemType string) ([]model.ReplenishmentRequest, error) {
	query := `SELECT id, item_type, quantity, priority, lead_time_seconds, reason, created_at
              FROM replenishments WHERE received = 0`
	args := []any{}
	if itemType != "" {
		query += ` AND item_type = ?`
		args = append(args, itemType)
	}
	query += ` ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	var out []model.ReplenishmentRequest
	for rows.Next() {
		var (
			r       model.ReplenishmentRequest
			prio    string
			lead    int64
			created int64
		)
		if err := rows.Scan(&r.ID, &r.ItemType, &r.Quantity, &prio, &lead, &r.Reason, &created); err != nil {
			return nil, err
		}
		severity, err := model.ParseAlertSeverity(prio)
		if err != nil {
			return nil, err
		}
		r.Priority = severity
		r.LeadTime = time.Duration(lead) * time.Second
		r.CreatedAt = time.Unix(created, 0)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) MarkReplenishmentReceived(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE replenishments SET received = 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

func (s *SQLiteStore) Metrics(ctx context.Context) (corestore.Snapshot, error) {
	snap := corestore.Snapshot{
		OrdersByStatus: map[model.OrderStatus]int{},
		TakenAt:        time.Now(),
	}
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM orders GROUP BY status`)
	if err != nil {
		return snap, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return snap, err
		}
		st, err := model.ParseOrderStatus(status)
		if err != nil {
			return snap, err
		}
		snap.OrdersByStatus[st] = n
	}
	if err := rows.Err(); err != nil {
		return snap, err
	}

	now := snap.TakenAt
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).Unix()
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(total), 0) FROM orders WHERE created_at >= ?`, midnight).Scan(&snap.RevenueToday)
	if err != nil {
		return snap, err
	}
	err = s.db.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(li.quantity), 0) FROM line_items li
         JOIN orders o ON o.id = li.order_id WHERE o.created_at >= ?`, midnight).Scan(&snap.ItemsToday)
	return snap, err
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullUnix(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return corestore.ErrNotFound
	}
	return nil
}
