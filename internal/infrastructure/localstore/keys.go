package localstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-hr-sync/internal/domain"
	"github.com/google/uuid"
)

// Persisted kv keys.
const (
	keySessionToken   = "session.token"
	keySessionUserID  = "session.user_id"
	keySessionProfile = "session.profile"
	keyPushPermission = "push.permission"
	keyDeviceID       = "device.id"
)

// LoadSession returns the persisted session or domain.ErrNotFound.
// A token without a readable profile still restores with an empty profile.
func (s *Store) LoadSession(ctx context.Context) (*domain.Session, error) {
	token, ok, err := getKV(ctx, s.db, keySessionToken)
	if err != nil {
		return nil, err
	}
	if !ok || token == "" {
		return nil, fmt.Errorf("no persisted session: %w", domain.ErrNotFound)
	}
	sess := &domain.Session{Token: token}
	if uid, ok, err := getKV(ctx, s.db, keySessionUserID); err == nil && ok {
		sess.UserID = uid
	}
	raw, ok, err := getKV(ctx, s.db, keySessionProfile)
	if err != nil {
		return nil, err
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &sess.Profile); err != nil {
			sess.Profile = domain.Profile{}
		}
	}
	if sess.UserID == "" {
		sess.UserID = sess.Profile.UserID
	}
	return sess, nil
}

// SaveSession writes token, user id and profile atomically.
func (s *Store) SaveSession(ctx context.Context, sess domain.Session) error {
	profile, err := json.Marshal(sess.Profile)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := putKV(ctx, tx, keySessionToken, sess.Token); err != nil {
			return err
		}
		if err := putKV(ctx, tx, keySessionUserID, sess.UserID); err != nil {
			return err
		}
		return putKV(ctx, tx, keySessionProfile, string(profile))
	})
}

// SaveProfile replaces only the cached profile.
func (s *Store) SaveProfile(ctx context.Context, p domain.Profile) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return putKV(ctx, s.db, keySessionProfile, string(raw))
}

// ClearSession removes token and profile. Watermarks, the device id and
// the push permission are device scoped and survive logout.
func (s *Store) ClearSession(ctx context.Context) error {
	return withTx(ctx, s.db, func(tx *sql.Tx) error {
		return deleteKV(ctx, tx, keySessionToken, keySessionUserID, keySessionProfile)
	})
}

// Watermark returns the last acknowledged entity id for kind, or "" when
// nothing was acknowledged yet.
func (s *Store) Watermark(ctx context.Context, kind domain.Kind) (string, error) {
	var entityID string
	err := s.db.QueryRowContext(ctx, "SELECT entity_id FROM watermarks WHERE kind = ?", string(kind)).Scan(&entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read watermark %s: %w", kind, err)
	}
	return entityID, nil
}

func (s *Store) SetWatermark(ctx context.Context, kind domain.Kind, entityID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO watermarks (kind, entity_id, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(kind) DO UPDATE SET entity_id = excluded.entity_id, updated_at = excluded.updated_at`,
		string(kind), entityID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("write watermark %s: %w", kind, err)
	}
	return nil
}

// Watermarks lists every stored watermark.
func (s *Store) Watermarks(ctx context.Context) ([]domain.Watermark, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT kind, entity_id, updated_at FROM watermarks ORDER BY kind")
	if err != nil {
		return nil, fmt.Errorf("list watermarks: %w", err)
	}
	defer rows.Close()
	var out []domain.Watermark
	for rows.Next() {
		var (
			w    domain.Watermark
			kind string
		)
		if err := rows.Scan(&kind, &w.EntityID, &w.UpdatedAt); err != nil {
			return nil, err
		}
		w.Kind = domain.Kind(kind)
		out = append(out, w)
	}
	return out, rows.Err()
}

func (s *Store) PushPermission(ctx context.Context) (domain.PushPermission, error) {
	v, _, err := getKV(ctx, s.db, keyPushPermission)
	if err != nil {
		return domain.PushUndetermined, err
	}
	return domain.PushPermission(v), nil
}

func (s *Store) SetPushPermission(ctx context.Context, p domain.PushPermission) error {
	return putKV(ctx, s.db, keyPushPermission, string(p))
}

// DeviceID returns the stable identity of this installation, generating it
// on first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	v, ok, err := getKV(ctx, s.db, keyDeviceID)
	if err != nil {
		return "", err
	}
	if ok && v != "" {
		return v, nil
	}
	fresh := uuid.NewString()
	if _, err := s.db.ExecContext(ctx, "INSERT OR IGNORE INTO kv (key, value) VALUES (?, ?)", keyDeviceID, fresh); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	v, _, err = getKV(ctx, s.db, keyDeviceID)
	return v, err
}
