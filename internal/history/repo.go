package history

import (
	"context"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateSession(ctx context.Context, s *Session) error {
	return r.db.WithContext(ctx).Create(s).Error
}

func (r *Repo) GetSessionByUID(ctx context.Context, uid string) (*Session, error) {
	var s Session
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// ListSessions returns sessions newest-first with their turn counts.
// archived filters by the archival flag; nil means no filter.
func (r *Repo) ListSessions(ctx context.Context, archived *bool) ([]SessionSummary, error) {
	q := r.db.WithContext(ctx).Model(&Session{}).
		Select("sessions.*, COUNT(turns.id) AS total_chats").
		Joins("LEFT JOIN turns ON turns.session_id = sessions.id").
		Group("sessions.id").
		Order("sessions.updated_at DESC")

	if archived != nil {
		q = q.Where("sessions.archived = ?", *archived)
	}

	var out []SessionSummary
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// SessionUpdate carries the optional fields of a session rename/retune.
// Only non-nil fields reach the UPDATE statement.
type SessionUpdate struct {
	Name         *string
	Model        *string
	Temperature  *float64
	Archived     *bool
	ModelfileUID *string
	Metadata     *string
}

func (u SessionUpdate) fields(now time.Time) map[string]any {
	m := map[string]any{"updated_at": now}
	if u.Name != nil {
		m["name"] = *u.Name
	}
	if u.Model != nil {
		m["model"] = *u.Model
	}
	if u.Temperature != nil {
		m["temperature"] = *u.Temperature
	}
	if u.Archived != nil {
		m["archived"] = *u.Archived
	}
	if u.ModelfileUID != nil {
		m["modelfile_uid"] = *u.ModelfileUID
	}
	if u.Metadata != nil {
		m["metadata"] = *u.Metadata
	}
	return m
}

func (r *Repo) UpdateSession(ctx context.Context, uid string, upd SessionUpdate) error {
	res := r.db.WithContext(ctx).Model(&Session{}).
		Where("uid = ?", uid).
		Updates(upd.fields(time.Now()))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteSession removes a session, its turns and their index rows in one
// transaction.
func (r *Repo) DeleteSession(ctx context.Context, uid string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s Session
		if err := tx.Where("uid = ?", uid).First(&s).Error; err != nil {
			return err
		}

		var turnIDs []uint64
		if err := tx.Model(&Turn{}).Where("session_id = ?", s.ID).
			Pluck("id", &turnIDs).Error; err != nil {
			return err
		}
		if len(turnIDs) > 0 {
			if err := tx.Exec("DELETE FROM turns_fts WHERE rowid IN ?", turnIDs).Error; err != nil {
				return err
			}
			if err := tx.Where("session_id = ?", s.ID).Delete(&Turn{}).Error; err != nil {
				return err
			}
		}
		return tx.Delete(&s).Error
	})
}

// ListTurns returns a session's turns oldest-first.
func (r *Repo) ListTurns(ctx context.Context, sessionID uint64) ([]Turn, error) {
	var turns []Turn
	if err := r.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("id ASC").
		Find(&turns).Error; err != nil {
		return nil, err
	}
	return turns, nil
}

func (r *Repo) GetTurnByUID(ctx context.Context, uid string) (*Turn, error) {
	var t Turn
	if err := r.db.WithContext(ctx).Where("uid = ?", uid).First(&t).Error; err != nil {
		return nil, err
	}
	return &t, nil
}

// DeleteTurns removes the named turns of a session, index rows included.
// Returns the number of turns deleted.
func (r *Repo) DeleteTurns(ctx context.Context, sessionUID string, turnUIDs []string) (int64, error) {
	if len(turnUIDs) == 0 {
		return 0, nil
	}
	var deleted int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var s Session
		if err := tx.Where("uid = ?", sessionUID).First(&s).Error; err != nil {
			return err
		}

		var turnIDs []uint64
		if err := tx.Model(&Turn{}).
			Where("session_id = ? AND uid IN ?", s.ID, turnUIDs).
			Pluck("id", &turnIDs).Error; err != nil {
			return err
		}
		if len(turnIDs) == 0 {
			return nil
		}
		if err := tx.Exec("DELETE FROM turns_fts WHERE rowid IN ?", turnIDs).Error; err != nil {
			return err
		}
		res := tx.Where("id IN ?", turnIDs).Delete(&Turn{})
		if res.Error != nil {
			return res.Error
		}
		deleted = res.RowsAffected
		return nil
	})
	return deleted, err
}

// Search runs a full-text query over prompt and reply text.
func (r *Repo) Search(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var hits []SearchHit
	err := r.db.WithContext(ctx).Raw(`
		SELECT sessions.uid AS session_uid,
		       turns.uid    AS turn_uid,
		       turns.prompt AS prompt,
		       turns.reply  AS reply,
		       turns.created_at AS created_at
		FROM turns_fts
		JOIN turns    ON turns.id = turns_fts.rowid
		JOIN sessions ON sessions.id = turns.session_id
		WHERE turns_fts MATCH ?
		ORDER BY rank
		LIMIT ?`, query, limit).Scan(&hits).Error
	if err != nil {
		return nil, err
	}
	return hits, nil
}
