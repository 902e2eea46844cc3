package storage

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"netmonitor/internal/logger"
	"netmonitor/internal/models"
)

type PostgresConfig struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port" validate:"omitempty,min=1,max=65535"`
	Database string `koanf:"database"`
	User     string `koanf:"user"`
	Password string `koanf:"password"`
	SSLMode  string `koanf:"sslmode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns int32  `koanf:"max_conns" validate:"gte=0"`
}

func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "netmonitor",
		User:     "postgres",
		SSLMode:  "disable",
		MaxConns: 4,
	}
}

// NewPostgresPool dials the configured server and pings it.
func NewPostgresPool(ctx context.Context, cfg PostgresConfig, log logger.Logger) (*pgxpool.Pool, error) {
	if cfg.Port == 0 {
		cfg.Port = 5432
	}

	connURL := url.URL{
		Scheme: "postgres",
		Host:   cfg.Host + ":" + strconv.Itoa(cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.User != "" {
		if cfg.Password != "" {
			connURL.User = url.UserPassword(cfg.User, cfg.Password)
		} else {
			connURL.User = url.User(cfg.User)
		}
	}

	query := connURL.Query()
	sslMode := cfg.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	query.Set("sslmode", sslMode)
	query.Set("application_name", "netmonitor")
	connURL.RawQuery = query.Encode()

	poolConfig, err := pgxpool.ParseConfig(connURL.String())
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to parse connection string: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres: failed to initialize pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Int32("max_conns", poolConfig.MaxConns).
		Msg("connected to postgres")

	return pool, nil
}

// PostgresStore persists through an injected pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore takes ownership of pool and creates the schema.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS devices (
			id SERIAL PRIMARY KEY,
			ip_address VARCHAR(15) NOT NULL,
			mac_address VARCHAR(17) UNIQUE NOT NULL,
			first_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_seen TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			device_name VARCHAR(100) NOT NULL DEFAULT 'Unknown'
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id UUID PRIMARY KEY,
			timestamp TIMESTAMPTZ NOT NULL,
			alert_type VARCHAR(50) NOT NULL,
			description TEXT,
			severity VARCHAR(10) CHECK (severity IN ('Low', 'Medium', 'High')),
			source VARCHAR(15),
			port INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS scan_results (
			id SERIAL PRIMARY KEY,
			device_ip VARCHAR(15) NOT NULL,
			open_ports INTEGER[] NOT NULL,
			scan_time TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) UpsertDevice(ctx context.Context, ip, mac, name string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO devices (ip_address, mac_address, device_name, last_seen)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (mac_address) DO UPDATE SET
			ip_address = EXCLUDED.ip_address,
			last_seen = NOW(),
			device_name = CASE WHEN EXCLUDED.device_name = 'Unknown'
				THEN devices.device_name ELSE EXCLUDED.device_name END
	`, ip, mac, name)
	if err != nil {
		return fmt.Errorf("failed to upsert device: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendAlert(ctx context.Context, a models.Alert) error {
	var source *string
	if a.Source != "" {
		source = &a.Source
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO alerts (id, timestamp, alert_type, description, severity, source, port)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, a.ID, a.Timestamp, a.Type, a.Description, a.Severity.String(), source, int32(a.Port))
	if err != nil {
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) AppendScanResult(ctx context.Context, ip string, ports []uint16) error {
	vals := make([]int32, len(ports))
	for i, p := range ports {
		vals[i] = int32(p)
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO scan_results (device_ip, open_ports)
		VALUES ($1, $2)
	`, ip, vals)
	if err != nil {
		return fmt.Errorf("failed to insert scan result: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDevices(ctx context.Context) ([]models.Device, error) {
	rows, err := s.pool.Query(ctx, `
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
			first, lastSeen time.Time
		)
		if err := rows.Scan(&d.HardwareID, &d.Address, &d.DisplayName, &first, &lastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan device: %w", err)
		}
		d.FirstSeen, d.LastSeen = first, lastSeen
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}
