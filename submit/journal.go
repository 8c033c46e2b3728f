package submit

import (
	"bytes"
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/sfomuseum/go-specimen-capture/common"
	"github.com/sfomuseum/go-specimen-capture/source"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations_fs embed.FS

// JournalTransactor records observations, image bytes included, in a local SQLite database.
type JournalTransactor struct {
	db *sql.DB
}

// type JournalEntry is a single stored observation, without its image.
type JournalEntry struct {
	ID             int64   `json:"id"`
	LocalID        int64   `json:"local_id"`
	Description    string  `json:"description"`
	SpeciesName    string  `json:"species_name"`
	Timestamp      string  `json:"timestamp"`
	Latitude       float64 `json:"latitude"`
	Longitude      float64 `json:"longitude"`
	PositionSource string  `json:"position_source"`
	Fingerprint    string  `json:"fingerprint"`
	MimeType       string  `json:"mime_type"`
	Created        int64   `json:"created"`
}

// NewJournalTransactor opens (creating if necessary) the database at 'path' and applies any
// outstanding migrations.
func NewJournalTransactor(ctx context.Context, path string) (*JournalTransactor, error) {

	err := os.MkdirAll(filepath.Dir(path), 0755)

	if err != nil {
		return nil, fmt.Errorf("Failed to create journal directory, %w", err)
	}

	db, err := sql.Open("sqlite", path)

	if err != nil {
		return nil, fmt.Errorf("Failed to open journal, %w", err)
	}

	err = db.PingContext(ctx)

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Failed to ping journal, %w", err)
	}

	err = runMigrations(db)

	if err != nil {
		db.Close()
		return nil, fmt.Errorf("Failed to migrate journal, %w", err)
	}

	t := &JournalTransactor{
		db: db,
	}

	return t, nil
}

func runMigrations(db *sql.DB) error {

	src, err := iofs.New(migrations_fs, "migrations")

	if err != nil {
		return fmt.Errorf("Failed to load migrations, %w", err)
	}

	driver, err := sqlite.WithInstance(db, &sqlite.Config{})

	if err != nil {
		return fmt.Errorf("Failed to create migration driver, %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)

	if err != nil {
		return fmt.Errorf("Failed to create migrator, %w", err)
	}

	// m.Close() would close 'db' as well

	err = m.Up()

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}

	return nil
}

func (t *JournalTransactor) Name() string {
	return "journal"
}

// Submit stores 'p'. An image whose fingerprint is already in the journal fails with ErrDuplicateImage.
func (t *JournalTransactor) Submit(ctx context.Context, p *Payload) error {

	if p.Image == nil {
		return Failure("Payload is missing image", nil)
	}

	body, err := source.ReadAll(ctx, p.Image)

	if err != nil {
		return Failure("Failed to read image", err)
	}

	fp, err := common.FingerprintReader(bytes.NewReader(body))

	if err != nil {
		return Failure("Failed to fingerprint image", err)
	}

	tx, err := t.db.BeginTx(ctx, nil)

	if err != nil {
		return Failure("Failed to begin transaction", err)
	}

	defer tx.Rollback()

	var exists bool

	err = tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM observations WHERE fingerprint = ?)`, fp).Scan(&exists)

	if err != nil {
		return Failure("Failed to query journal", err)
	}

	if exists {
		return fmt.Errorf("Image %s is already in the journal, %w", fp, ErrDuplicateImage)
	}

	q := `INSERT INTO observations (local_id, description, species_name, timestamp, latitude, longitude, position_source, fingerprint, mime_type, image, created) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = tx.ExecContext(ctx, q,
		p.ID, p.Description, p.SpeciesName, p.Timestamp,
		p.LatitudeString(), p.LongitudeString(), p.PositionSource,
		fp, p.Image.MimeType(), body, time.Now().Unix(),
	)

	if err != nil {
		return Failure("Failed to insert observation", err)
	}

	err = tx.Commit()

	if err != nil {
		return Failure("Failed to commit observation", err)
	}

	return nil
}

// Entries returns every stored observation, oldest first.
func (t *JournalTransactor) Entries(ctx context.Context) ([]*JournalEntry, error) {

	q := `SELECT id, local_id, description, species_name, timestamp, latitude, longitude, position_source, fingerprint, mime_type, created FROM observations ORDER BY created, id`

	rows, err := t.db.QueryContext(ctx, q)

	if err != nil {
		return nil, fmt.Errorf("Failed to query journal, %w", err)
	}

	defer rows.Close()

	entries := make([]*JournalEntry, 0)

	for rows.Next() {

		var e JournalEntry
		var str_lat string
		var str_lon string

		err := rows.Scan(&e.ID, &e.LocalID, &e.Description, &e.SpeciesName, &e.Timestamp, &str_lat, &str_lon, &e.PositionSource, &e.Fingerprint, &e.MimeType, &e.Created)

		if err != nil {
			return nil, fmt.Errorf("Failed to scan row, %w", err)
		}

		e.Latitude, err = strconv.ParseFloat(str_lat, 64)

		if err != nil {
			return nil, fmt.Errorf("Invalid latitude for observation %d, %w", e.ID, err)
		}

		e.Longitude, err = strconv.ParseFloat(str_lon, 64)

		if err != nil {
			return nil, fmt.Errorf("Invalid longitude for observation %d, %w", e.ID, err)
		}

		entries = append(entries, &e)
	}

	err = rows.Err()

	if err != nil {
		return nil, fmt.Errorf("Failed to iterate rows, %w", err)
	}

	return entries, nil
}

// Image returns the stored image bytes for the journal entry 'id'.
func (t *JournalTransactor) Image(ctx context.Context, id int64) ([]byte, error) {

	var body []byte

	err := t.db.QueryRowContext(ctx, `SELECT image FROM observations WHERE id = ?`, id).Scan(&body)

	if err != nil {
		return nil, fmt.Errorf("Failed to load image for observation %d, %w", id, err)
	}

	return body, nil
}

// Close closes the underlying database.
func (t *JournalTransactor) Close() error {
	return t.db.Close()
}
