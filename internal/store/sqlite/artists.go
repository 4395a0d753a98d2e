package sqlite

import (
	"context"
	"encoding/json"
	"time"

	"github.com/tagyard/tagyard-server/internal/domain"
	"github.com/tagyard/tagyard-server/internal/store"
)

const artistColumns = `id, name, other_names, created_at, updated_at`

func scanArtist(sc scanner) (*domain.Artist, error) {
	var (
		a                    domain.Artist
		otherNames           string
		createdAt, updatedAt string
	)
	err := sc.Scan(&a.ID, &a.Name, &otherNames, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(otherNames), &a.OtherNames); err != nil {
		return nil, err
	}
	if a.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if a.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

// CreateArtist inserts an artist profile.
func (s *Store) CreateArtist(ctx context.Context, a *domain.Artist) error {
	now := time.Now()
	a.CreatedAt, a.UpdatedAt = now, now
	otherNames, err := json.Marshal(nonNil(a.OtherNames))
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO artists (`+artistColumns+`) VALUES (?, ?, ?, ?, ?)`,
		a.ID, a.Name, string(otherNames), formatTime(a.CreatedAt), formatTime(a.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	return classify(err)
}

// GetArtistByName retrieves the artist linked to a tag name.
func (s *Store) GetArtistByName(ctx context.Context, name string) (*domain.Artist, error) {
	a, err := scanArtist(s.db.QueryRowContext(ctx, `SELECT `+artistColumns+` FROM artists WHERE name = ?`, name))
	if err != nil {
		return nil, notFound(err)
	}
	return a, nil
}

// UpdateArtist saves name and other names.
func (s *Store) UpdateArtist(ctx context.Context, a *domain.Artist) error {
	a.UpdatedAt = time.Now()
	otherNames, err := json.Marshal(nonNil(a.OtherNames))
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE artists SET name = ?, other_names = ?, updated_at = ? WHERE id = ?`,
		a.Name, string(otherNames), formatTime(a.UpdatedAt), a.ID,
	)
	if isUniqueViolation(err) {
		return store.ErrAlreadyExists
	}
	if err != nil {
		return classify(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
