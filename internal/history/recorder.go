package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pmerrell/ollamadesk/internal/common"
)

// RecordRequest is everything the recorder needs to durably commit one
// completed exchange.
type RecordRequest struct {
	SessionUID  string
	TurnUID     string
	Prompt      string
	Reply       string
	Role        string
	Model       string
	Temperature float64
	// Provenance holds the original request fields minus prompt and model,
	// stored opaquely alongside the turn.
	Provenance map[string]any
}

// Recorder commits finished turns. It creates the parent session on first
// use and keeps the full-text index in the same transaction as the rows.
type Recorder struct {
	db  *gorm.DB
	log *zap.Logger
}

func NewRecorder(db *gorm.DB, log *zap.Logger) *Recorder {
	return &Recorder{db: db, log: log}
}

// RecordTurn upserts the session, inserts (or, for a retried turn uid,
// updates) the turn, and writes the matching index row. All three happen in
// one transaction: a failed index write rolls the turn back too.
func (r *Recorder) RecordTurn(ctx context.Context, req RecordRequest) (*Turn, error) {
	if req.Role == "" {
		req.Role = "assistant"
	}
	if req.TurnUID == "" {
		req.TurnUID = common.NewUID()
	}
	now := time.Now()

	provenance := ""
	if len(req.Provenance) > 0 {
		b, err := json.Marshal(req.Provenance)
		if err != nil {
			r.log.Warn("provenance not serializable, dropping", zap.Error(err))
		} else {
			provenance = string(b)
		}
	}

	var turn *Turn
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sess, err := r.resolveSession(tx, req, now)
		if err != nil {
			return err
		}

		// Retried turn uid: overwrite the reply instead of appending a
		// duplicate row.
		var existing Turn
		err = tx.Where("uid = ?", req.TurnUID).First(&existing).Error
		switch {
		case err == nil:
			existing.Reply = req.Reply
			existing.Provenance = provenance
			if err := tx.Save(&existing).Error; err != nil {
				return err
			}
			if err := tx.Exec(
				"UPDATE turns_fts SET prompt = ?, reply = ? WHERE rowid = ?",
				existing.Prompt, existing.Reply, existing.ID,
			).Error; err != nil {
				return fmt.Errorf("updating search index: %w", err)
			}
			turn = &existing
			return nil

		case errors.Is(err, gorm.ErrRecordNotFound):
			t := Turn{
				UID:        req.TurnUID,
				SessionID:  sess.ID,
				Prompt:     req.Prompt,
				Reply:      req.Reply,
				Role:       req.Role,
				Provenance: provenance,
				CreatedAt:  now,
			}
			if err := tx.Create(&t).Error; err != nil {
				return err
			}
			if err := tx.Exec(
				"INSERT INTO turns_fts(rowid, prompt, reply) VALUES (?, ?, ?)",
				t.ID, t.Prompt, t.Reply,
			).Error; err != nil {
				return fmt.Errorf("indexing turn: %w", err)
			}
			turn = &t
			return nil

		default:
			return err
		}
	})
	if err != nil {
		return nil, err
	}
	return turn, nil
}

// resolveSession finds the parent session, creating it on first use. An
// existing session only gets its updated_at bumped; chatting never mutates
// name, model or temperature.
func (r *Recorder) resolveSession(tx *gorm.DB, req RecordRequest, now time.Time) (*Session, error) {
	uid := req.SessionUID
	if uid == "" {
		uid = common.NewUID()
	}

	var sess Session
	err := tx.Where("uid = ?", uid).First(&sess).Error
	switch {
	case err == nil:
		if err := tx.Model(&Session{}).Where("id = ?", sess.ID).
			Update("updated_at", now).Error; err != nil {
			return nil, err
		}
		return &sess, nil

	case errors.Is(err, gorm.ErrRecordNotFound):
		sess = Session{
			UID:         uid,
			Name:        "Chat " + now.Format("2006-01-02 15:04:05"),
			Model:       req.Model,
			Temperature: req.Temperature,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.Create(&sess).Error; err != nil {
			return nil, err
		}
		return &sess, nil

	default:
		return nil, err
	}
}
