// Package storage provides a SQLite-backed journal of emitted signals.
package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewired-gh/spikewatch/internal/models"
	_ "modernc.org/sqlite"
)

// Storage wraps a SQLite database for signal history.
type Storage struct {
	db         *sql.DB
	maxSignals int
}

// New opens or creates the SQLite database at dbPath.
// An empty dbPath defaults to $TMPDIR/spikewatch/signals.db.
func New(maxSignals int, dbPath string) (*Storage, error) {
	if dbPath == "" {
		dbPath = filepath.Join(os.TempDir(), "spikewatch", "signals.db")
	}
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}
	s := &Storage{db: db, maxSignals: maxSignals}
	if err := s.createTables(); err != nil {
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Storage) Close() error {
	return s.db.Close()
}

func (s *Storage) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS signals (
			id               TEXT PRIMARY KEY,
			cycle            INTEGER NOT NULL,
			asset            TEXT NOT NULL,
			volume_24h       REAL NOT NULL,
			price            REAL NOT NULL,
			sigma_deviation  REAL NOT NULL,
			z_score          REAL NOT NULL,
			mean_volume      REAL NOT NULL,
			periods_analyzed INTEGER NOT NULL,
			current_price    REAL NOT NULL,
			ema_value        REAL NOT NULL,
			price_above_ema  INTEGER NOT NULL,
			ema_slope        INTEGER NOT NULL,
			method           TEXT NOT NULL,
			periods_used     INTEGER NOT NULL,
			detected_at      INTEGER NOT NULL,
			notified         INTEGER DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_detected_at ON signals(detected_at)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_asset ON signals(asset)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) AddSignal(signal *models.Signal) error {
	if signal.ID == "" {
		return fmt.Errorf("signal ID must not be empty")
	}
	if err := signal.Asset.Validate(); err != nil {
		return fmt.Errorf("invalid signal asset: %w", err)
	}
	_, err := s.db.Exec(`
		INSERT INTO signals
			(id, cycle, asset, volume_24h, price, sigma_deviation, z_score, mean_volume,
			 periods_analyzed, current_price, ema_value, price_above_ema, ema_slope, method,
			 periods_used, detected_at, notified)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		signal.ID, signal.Cycle, signal.Asset.Name, signal.Asset.Volume24h, signal.Asset.Price,
		signal.Volume.SigmaDeviation, signal.Volume.ZScore, signal.Volume.MeanVolume,
		signal.Volume.PeriodsAnalyzed,
		signal.Momentum.CurrentPrice, signal.Momentum.EMAValue,
		boolToInt(signal.Momentum.PriceAboveEMA), int(signal.Momentum.EMASlope),
		string(signal.Momentum.Method), signal.Momentum.PeriodsUsed,
		signal.DetectedAt.UnixNano(), boolToInt(signal.Notified),
	)
	if err != nil {
		return fmt.Errorf("failed to insert signal: %w", err)
	}
	return nil
}

// RecentSignals returns up to k signals, newest first.
func (s *Storage) RecentSignals(k int) ([]models.Signal, error) {
	rows, err := s.db.Query(`SELECT `+signalCols+` FROM signals ORDER BY detected_at DESC LIMIT ?`, k)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []models.Signal
	for rows.Next() {
		sig, err := scanSignal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, *sig)
	}
	if signals == nil {
		signals = []models.Signal{}
	}
	return signals, rows.Err()
}

// SignalsForAsset returns the asset's signals, newest first.
func (s *Storage) SignalsForAsset(asset string) ([]models.Signal, error) {
	rows, err := s.db.Query(`SELECT `+signalCols+` FROM signals WHERE asset = ? ORDER BY detected_at DESC`, asset)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	signals := []models.Signal{}
	for rows.Next() {
		sig, err := scanSignal(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		signals = append(signals, *sig)
	}
	return signals, rows.Err()
}

func (s *Storage) CountSignals() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM signals`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count signals: %w", err)
	}
	return n, nil
}

// RotateSignals keeps at most maxSignals newest signals by detected_at.
func (s *Storage) RotateSignals() error {
	_, err := s.db.Exec(`
		DELETE FROM signals WHERE id NOT IN (
			SELECT id FROM signals ORDER BY detected_at DESC LIMIT ?
		)`, s.maxSignals)
	if err != nil {
		return fmt.Errorf("failed to rotate signals: %w", err)
	}
	return nil
}

const signalCols = `id, cycle, asset, volume_24h, price, sigma_deviation, z_score, mean_volume,
	periods_analyzed, current_price, ema_value, price_above_ema, ema_slope, method,
	periods_used, detected_at, notified`

func scanSignal(scan func(...any) error) (*models.Signal, error) {
	var sig models.Signal
	var priceAbove, slope, notified int
	var method string
	var detectedAtNano int64
	err := scan(
		&sig.ID, &sig.Cycle, &sig.Asset.Name, &sig.Asset.Volume24h, &sig.Asset.Price,
		&sig.Volume.SigmaDeviation, &sig.Volume.ZScore, &sig.Volume.MeanVolume,
		&sig.Volume.PeriodsAnalyzed,
		&sig.Momentum.CurrentPrice, &sig.Momentum.EMAValue,
		&priceAbove, &slope, &method, &sig.Momentum.PeriodsUsed,
		&detectedAtNano, &notified,
	)
	if err != nil {
		return nil, err
	}
	sig.Volume.CurrentVolume = sig.Asset.Volume24h
	sig.Momentum.PriceAboveEMA = priceAbove != 0
	sig.Momentum.EMASlope = models.Slope(slope)
	sig.Momentum.Method = models.AverageMethod(method)
	sig.DetectedAt = time.Unix(0, detectedAtNano)
	sig.Notified = notified != 0
	return &sig, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
