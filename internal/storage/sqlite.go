package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"netmonitor/internal/models"
)

type SQLiteConfig struct {
	Path string `koanf:"path"`
}

// SQLiteStore persists to a single SQLite file. Timestamps are stored as
// unix milliseconds.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens path (":memory:" works) and creates the schema.
func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// a single connection keeps ":memory:" databases coherent
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS devices (
		mac_address TEXT PRIMARY KEY,
		ip_address TEXT NOT NULL,
		device_name TEXT NOT NULL DEFAULT 'Unknown',
		first_seen INTEGER NOT NULL,
		last_seen INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS alerts (
		id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL,
		alert_type TEXT NOT NULL,
		description TEXT,
		severity TEXT NOT NULL CHECK (severity IN ('Low', 'Medium', 'High')),
		source TEXT,
		port INTEGER
	);

	CREATE TABLE IF NOT EXISTS scan_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		device_ip TEXT NOT NULL,
		open_ports TEXT NOT NULL,
		scan_time INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_alerts_created ON alerts(created_at);
	CREATE INDEX IF NOT EXISTS idx_scan_results_ip ON scan_results(device_ip);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *SQLiteStore) UpsertDevice(ctx context.Context, ip, mac, name string) error {
	now := s.now().UnixMilli()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO devices (mac_address, ip_address, device_name, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (mac_address) DO UPDATE SET
			ip_address = excluded.ip_address,
			last_seen = excluded.last_seen,
			device_name = CASE WHEN excluded.device_name = 'Unknown'
				THEN devices.device_name ELSE excluded.device_name END
	`, mac, ip, name, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendAlert(ctx context.Context, a models.Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (id, created_at, alert_type, description, severity, source, port)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, a.ID, a.Timestamp.UnixMilli(), a.Type, a.Description, a.Severity.String(), a.Source, int(a.Port))
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendScanResult(ctx context.Context, ip string, ports []uint16) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scan_results (device_ip, open_ports, scan_time)
		VALUES (?, ?, ?)
	`, ip, joinPorts(ports), s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to insert scan result: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT mac_address, ip_address, device_name, first_seen, last_seen
		FROM devices
		ORDER BY mac_address
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query devices: %w", err)
	}
	defer rows.Close()

	var out []models.Device
	for rows.Next() {
		var (
			d               models.Device
			first, lastSeen int64
		)
		if err := rows.Scan(&d.HardwareID, &d.Address, &d.DisplayName, &first, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.FirstSeen = time.UnixMilli(first)
		d.LastSeen = time.UnixMilli(lastSeen)
		out = append(out, d)
	}
	return out, rows.Err()
}

// ScanResults returns the stored scan results for ip, oldest first.
func (s *SQLiteStore) ScanResults(ctx context.Context, ip string) ([]models.ScanResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT device_ip, open_ports, scan_time
		FROM scan_results
		WHERE device_ip = ?
		ORDER BY id
	`, ip)
	if err != nil {
		return nil, fmt.Errorf("failed to query scan results: %w", err)
	}
	defer rows.Close()

	var out []models.ScanResult
	for rows.Next() {
		var (
			r     models.ScanResult
			ports string
			ts    int64
		)
		if err := rows.Scan(&r.Address, &ports, &ts); err != nil {
			return nil, fmt.Errorf("failed to scan result row: %w", err)
		}
		r.OpenPorts = splitPorts(ports)
		r.ScanTime = time.UnixMilli(ts)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func joinPorts(ports []uint16) string {
	parts := make([]string, len(ports))
	for i, p := range ports {
		parts[i] = strconv.Itoa(int(p))
	}
	return strings.Join(parts, ",")
}

func splitPorts(s string) []uint16 {
	if s == "" {
		return nil
	}
	var out []uint16
	for _, f := range strings.Split(s, ",") {
		if n, err := strconv.ParseUint(f, 10, 16); err == nil {
			out = append(out, uint16(n))
		}
	}
	return out
}
