package rooms

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roomkit/console-backend/internal/models"
)

// Repository handles room and membership persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a rooms repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new room.
func (r *Repository) Create(ctx context.Context, room *models.Room) error {
	const q = `INSERT INTO rooms (id, name, owner_id, recording_enabled, recording_access, auto_deletion_at)
		VALUES (gen_random_uuid(), $1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at`
	return r.pool.QueryRow(ctx, q, room.Name, room.OwnerID, room.Recording.Enabled, room.Recording.AllowAccessTo, room.AutoDeletionAt).
		Scan(&room.ID, &room.CreatedAt, &room.UpdatedAt)
}

// GetByID returns a room by ID, or nil when absent.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Room, error) {
	const q = `SELECT id, name, owner_id, recording_enabled, recording_access, auto_deletion_at, created_at, updated_at
		FROM rooms WHERE id = $1`
	var room models.Room
	err := r.pool.QueryRow(ctx, q, id).Scan(&room.ID, &room.Name, &room.OwnerID,
		&room.Recording.Enabled, &room.Recording.AllowAccessTo, &room.AutoDeletionAt, &room.CreatedAt, &room.UpdatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &room, nil
}

// List returns all rooms, optionally filtered by owner.
func (r *Repository) List(ctx context.Context, ownerID *uuid.UUID) ([]models.Room, error) {
	base := `SELECT id, name, owner_id, recording_enabled, recording_access, auto_deletion_at, created_at, updated_at FROM rooms`
	var args []interface{}
	if ownerID != nil {
		base += " WHERE owner_id = $1"
		args = append(args, *ownerID)
	}
	rows, err := r.pool.Query(ctx, base+" ORDER BY created_at DESC", args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.OwnerID,
			&room.Recording.Enabled, &room.Recording.AllowAccessTo, &room.AutoDeletionAt, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, room)
	}
	return list, rows.Err()
}

// ListIDs returns all room IDs, for sweep jobs.
func (r *Repository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM rooms`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListExpired returns rooms whose auto-deletion date has elapsed.
func (r *Repository) ListExpired(ctx context.Context, now time.Time) ([]models.Room, error) {
	const q = `SELECT id, name, owner_id, recording_enabled, recording_access, auto_deletion_at, created_at, updated_at
		FROM rooms WHERE auto_deletion_at IS NOT NULL AND auto_deletion_at <= $1`
	rows, err := r.pool.Query(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Room
	for rows.Next() {
		var room models.Room
		if err := rows.Scan(&room.ID, &room.Name, &room.OwnerID,
			&room.Recording.Enabled, &room.Recording.AllowAccessTo, &room.AutoDeletionAt, &room.CreatedAt, &room.UpdatedAt); err != nil {
			return nil, err
		}
		list = append(list, room)
	}
	return list, rows.Err()
}

// UpdateRecordingConfig replaces the room's recording configuration.
func (r *Repository) UpdateRecordingConfig(ctx context.Context, id uuid.UUID, cfg models.RecordingConfig) error {
	const q = `UPDATE rooms SET recording_enabled = $1, recording_access = $2, updated_at = NOW() WHERE id = $3`
	_, err := r.pool.Exec(ctx, q, cfg.Enabled, cfg.AllowAccessTo, id)
	return err
}

// Delete removes a room by ID.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM rooms WHERE id = $1`, id)
	return err
}

// AddMember inserts or updates a room membership.
func (r *Repository) AddMember(ctx context.Context, m *models.RoomMember) error {
	const q = `INSERT INTO room_members (room_id, user_id, role, can_record, can_retrieve_recordings, can_delete_recordings)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (room_id, user_id) DO UPDATE SET
			role = EXCLUDED.role,
			can_record = EXCLUDED.can_record,
			can_retrieve_recordings = EXCLUDED.can_retrieve_recordings,
			can_delete_recordings = EXCLUDED.can_delete_recordings
		RETURNING created_at`
	return r.pool.QueryRow(ctx, q, m.RoomID, m.UserID, m.Role, m.CanRecord, m.CanRetrieveRecordings, m.CanDeleteRecordings).
		Scan(&m.CreatedAt)
}

// GetMember returns a membership, or nil when the user is not a member.
func (r *Repository) GetMember(ctx context.Context, roomID, userID uuid.UUID) (*models.RoomMember, error) {
	const q = `SELECT room_id, user_id, role, can_record, can_retrieve_recordings, can_delete_recordings, created_at
		FROM room_members WHERE room_id = $1 AND user_id = $2`
	var m models.RoomMember
	err := r.pool.QueryRow(ctx, q, roomID, userID).Scan(&m.RoomID, &m.UserID, &m.Role,
		&m.CanRecord, &m.CanRetrieveRecordings, &m.CanDeleteRecordings, &m.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &m, nil
}

// ListMembers returns all members of a room.
func (r *Repository) ListMembers(ctx context.Context, roomID uuid.UUID) ([]models.RoomMember, error) {
	const q = `SELECT room_id, user_id, role, can_record, can_retrieve_recordings, can_delete_recordings, created_at
		FROM room_members WHERE room_id = $1 ORDER BY created_at`
	rows, err := r.pool.Query(ctx, q, roomID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.RoomMember
	for rows.Next() {
		var m models.RoomMember
		if err := rows.Scan(&m.RoomID, &m.UserID, &m.Role,
			&m.CanRecord, &m.CanRetrieveRecordings, &m.CanDeleteRecordings, &m.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, m)
	}
	return list, rows.Err()
}

// RemoveMember deletes a membership.
func (r *Repository) RemoveMember(ctx context.Context, roomID, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM room_members WHERE room_id = $1 AND user_id = $2`, roomID, userID)
	return err
}
