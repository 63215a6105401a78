// Package modelfile manages system-prompt personas. A persona is stored as
// a row and mirrored to the inference server as a derived model.
package modelfile

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pmerrell/ollamadesk/internal/common"
	"github.com/pmerrell/ollamadesk/internal/llm"
)

type Modelfile struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UID       string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uid"`
	Name      string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"name"`
	BaseModel string    `gorm:"type:varchar(64);not null" json:"baseModel"`
	System    string    `gorm:"type:text;not null" json:"system"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Modelfile) TableName() string { return "modelfiles" }

// Render produces the Modelfile text pushed to the inference server.
func (m *Modelfile) Render() string {
	return fmt.Sprintf("FROM %s\nSYSTEM \"\"\"%s\"\"\"\n", m.BaseModel, m.System)
}

type Service struct {
	db  *gorm.DB
	llm *llm.Client
	log *zap.Logger
}

func NewService(db *gorm.DB, client *llm.Client, log *zap.Logger) *Service {
	return &Service{db: db, llm: client, log: log}
}

func (s *Service) List(ctx context.Context) ([]Modelfile, error) {
	var out []Modelfile
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, uid string) (*Modelfile, error) {
	var m Modelfile
	if err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// Create stores the persona and registers it with the inference server. The
// row is the source of truth: if the push fails the row is rolled back so
// the two never drift apart.
func (s *Service) Create(ctx context.Context, name, baseModel, system string) (*Modelfile, error) {
	m := Modelfile{
		UID:       common.NewUID(),
		Name:      name,
		BaseModel: baseModel,
		System:    system,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&m).Error; err != nil {
			return err
		}
		if err := s.llm.CreateModel(ctx, m.Name, m.Render()); err != nil {
			return fmt.Errorf("pushing modelfile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Update rewrites the persona and re-pushes it under the same name.
func (s *Service) Update(ctx context.Context, uid string, baseModel, system string) (*Modelfile, error) {
	var m Modelfile
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("uid = ?", uid).First(&m).Error; err != nil {
			return err
		}
		if baseModel != "" {
			m.BaseModel = baseModel
		}
		if system != "" {
			m.System = system
		}
		if err := tx.Save(&m).Error; err != nil {
			return err
		}
		if err := s.llm.CreateModel(ctx, m.Name, m.Render()); err != nil {
			return fmt.Errorf("pushing modelfile: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Delete removes the row and, best-effort, the derived model upstream. A
// failed upstream delete only logs: the persona is gone either way.
func (s *Service) Delete(ctx context.Context, uid string) error {
	var m Modelfile
	if err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&m).Error; err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&m).Error; err != nil {
		return err
	}
	if err := s.llm.DeleteModel(ctx, m.Name); err != nil {
		s.log.Warn("deleting upstream model failed",
			zap.String("name", m.Name), zap.Error(err))
	}
	return nil
}
