package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/tschoem/rental-manager-sub000/models"
)

// PostgresStore persists properties, rooms, and image records.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema
// migrations, and returns a ready-to-use store.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	st := &PostgresStore{db: db}
	if err := st.migrate(); err != nil {
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return st, nil
}

func (st *PostgresStore) migrate() error {
	_, err := st.db.Exec(`
		CREATE TABLE IF NOT EXISTS properties (
			id         SERIAL PRIMARY KEY,
			name       TEXT        NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS rooms (
			id          SERIAL PRIMARY KEY,
			property_id INTEGER     NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
			name        TEXT        NOT NULL,
			description TEXT        NOT NULL DEFAULT '',
			price       NUMERIC(10,2),
			capacity    INTEGER,
			amenities   TEXT        NOT NULL DEFAULT '[]',
			airbnb_url  TEXT        NOT NULL DEFAULT '',
			"order"     INTEGER     NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS images (
			id          SERIAL PRIMARY KEY,
			property_id INTEGER     NOT NULL REFERENCES properties(id) ON DELETE CASCADE,
			room_id     INTEGER     REFERENCES rooms(id) ON DELETE CASCADE,
			url         TEXT        NOT NULL,
			source_url  TEXT        NOT NULL DEFAULT '',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_rooms_property  ON rooms(property_id);
		CREATE INDEX IF NOT EXISTS idx_images_property ON images(property_id);
		CREATE INDEX IF NOT EXISTS idx_images_room     ON images(room_id);
	`)
	return err
}

// EnsureProperty returns the named property, creating it when it does not
// exist yet.
func (st *PostgresStore) EnsureProperty(ctx context.Context, name string) (*models.Property, error) {
	p := &models.Property{Name: name}
	err := st.db.QueryRowContext(ctx, `
		INSERT INTO properties (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, created_at
	`, name).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: ensure property %q: %w", name, err)
	}
	return p, nil
}

// NextRoomOrder returns max existing sibling order + 1, or 0 for the first
// room of a property.
func (st *PostgresStore) NextRoomOrder(ctx context.Context, propertyID int64) (int, error) {
	var next int
	err := st.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX("order") + 1, 0) FROM rooms WHERE property_id = $1
	`, propertyID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("postgres: next room order: %w", err)
	}
	return next, nil
}

// CreateRoom inserts the room and fills in its generated ID.
func (st *PostgresStore) CreateRoom(ctx context.Context, room *models.Room) error {
	amenities, err := json.Marshal(room.Amenities)
	if err != nil {
		return fmt.Errorf("postgres: marshal amenities: %w", err)
	}

	err = st.db.QueryRowContext(ctx, `
		INSERT INTO rooms (property_id, name, description, price, capacity, amenities, airbnb_url, "order")
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at
	`, room.PropertyID, room.Name, room.Description, room.Price, room.Capacity,
		string(amenities), room.AirbnbURL, room.Order).Scan(&room.ID, &room.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: create room: %w", err)
	}
	return nil
}

// ExistingSourceURLs returns the scraped origin URL of every image already
// stored for the property, room-level records included — the union the
// import dedupes against. Stored URLs live in a different URL space than
// scraped ones, so dedupe keys on the source.
func (st *PostgresStore) ExistingSourceURLs(ctx context.Context, propertyID int64) ([]string, error) {
	rows, err := st.db.QueryContext(ctx, `
		SELECT source_url FROM images WHERE property_id = $1 AND source_url <> ''
	`, propertyID)
	if err != nil {
		return nil, fmt.Errorf("postgres: existing source urls: %w", err)
	}
	defer rows.Close()

	var urls []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, fmt.Errorf("postgres: scan source url: %w", err)
		}
		urls = append(urls, u)
	}
	return urls, rows.Err()
}

// InsertImages persists image records with one multi-value insert.
func (st *PostgresStore) InsertImages(ctx context.Context, images []models.Image) error {
	if len(images) == 0 {
		return nil
	}

	valueStrings := make([]string, 0, len(images))
	valueArgs := make([]interface{}, 0, len(images)*4)
	for idx, img := range images {
		base := idx * 4
		valueStrings = append(valueStrings, fmt.Sprintf("($%d,$%d,$%d,$%d)", base+1, base+2, base+3, base+4))
		valueArgs = append(valueArgs, img.PropertyID, img.RoomID, img.URL, img.SourceURL)
	}

	query := fmt.Sprintf(`
		INSERT INTO images (property_id, room_id, url, source_url)
		VALUES %s
	`, strings.Join(valueStrings, ","))

	if _, err := st.db.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: insert images: %w", err)
	}
	return nil
}

// GetRoom fetches a room by id, amenities deserialized.
func (st *PostgresStore) GetRoom(ctx context.Context, id int64) (*models.Room, error) {
	room := &models.Room{}
	var amenities string
	err := st.db.QueryRowContext(ctx, `
		SELECT id, property_id, name, description, price, capacity, amenities, airbnb_url, "order", created_at
		FROM rooms WHERE id = $1
	`, id).Scan(&room.ID, &room.PropertyID, &room.Name, &room.Description,
		&room.Price, &room.Capacity, &amenities, &room.AirbnbURL, &room.Order, &room.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("postgres: get room %d: %w", id, err)
	}
	if err := json.Unmarshal([]byte(amenities), &room.Amenities); err != nil {
		return nil, fmt.Errorf("postgres: unmarshal amenities: %w", err)
	}
	return room, nil
}

// Close closes the underlying database handle.
func (st *PostgresStore) Close() error {
	return st.db.Close()
}
