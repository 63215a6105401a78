// Package project stages documents for fine-tuning: projects group uploaded
// files, files live on disk under the upload directory.
package project

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pmerrell/ollamadesk/internal/common"
)

type Project struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	UID       string    `gorm:"type:varchar(36);uniqueIndex;not null" json:"uid"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (Project) TableName() string { return "projects" }

type File struct {
	ID          uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ProjectID   uint64    `gorm:"index;not null" json:"-"`
	Name        string    `gorm:"type:varchar(255);not null" json:"name"`
	Path        string    `gorm:"type:varchar(512);not null" json:"-"`
	Size        int64     `gorm:"not null" json:"size"`
	ContentType string    `gorm:"type:varchar(128)" json:"contentType"`
	CreatedAt   time.Time `json:"createdAt"`
}

func (File) TableName() string { return "files" }

type Service struct {
	db      *gorm.DB
	dataDir string
	log     *zap.Logger
}

func NewService(db *gorm.DB, dataDir string, log *zap.Logger) *Service {
	return &Service{db: db, dataDir: dataDir, log: log}
}

func (s *Service) List(ctx context.Context) ([]Project, error) {
	var out []Project
	if err := s.db.WithContext(ctx).Order("updated_at DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Get(ctx context.Context, uid string) (*Project, error) {
	var p Project
	if err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) Create(ctx context.Context, name string) (*Project, error) {
	p := Project{UID: common.NewUID(), Name: name}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Join(s.dataDir, p.UID), 0o755); err != nil {
		return nil, fmt.Errorf("creating project directory: %w", err)
	}
	return &p, nil
}

// Delete removes the project, its file rows and the on-disk directory.
func (s *Service) Delete(ctx context.Context, uid string) error {
	var p Project
	if err := s.db.WithContext(ctx).Where("uid = ?", uid).First(&p).Error; err != nil {
		return err
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", p.ID).Delete(&File{}).Error; err != nil {
			return err
		}
		return tx.Delete(&p).Error
	})
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.dataDir, p.UID)); err != nil {
		s.log.Warn("removing project directory failed",
			zap.String("uid", p.UID), zap.Error(err))
	}
	return nil
}

func (s *Service) ListFiles(ctx context.Context, projectUID string) ([]File, error) {
	p, err := s.Get(ctx, projectUID)
	if err != nil {
		return nil, err
	}
	var files []File
	if err := s.db.WithContext(ctx).
		Where("project_id = ?", p.ID).
		Order("id ASC").
		Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

// FilePaths returns the absolute on-disk paths of a project's files, in the
// shape the trainer microservice expects.
func (s *Service) FilePaths(ctx context.Context, projectUID string) ([]string, error) {
	files, err := s.ListFiles(ctx, projectUID)
	if err != nil {
		return nil, err
	}
	paths := make([]string, 0, len(files))
	for _, f := range files {
		paths = append(paths, f.Path)
	}
	return paths, nil
}

// SaveUpload stores one multipart upload under the project's directory and
// records it. The base name is sanitized; path separators never reach disk.
func (s *Service) SaveUpload(ctx context.Context, projectUID string, fh *multipart.FileHeader) (*File, error) {
	p, err := s.Get(ctx, projectUID)
	if err != nil {
		return nil, err
	}

	name := filepath.Base(fh.Filename)
	if name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("invalid file name %q", fh.Filename)
	}

	dir := filepath.Join(s.dataDir, p.UID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating project directory: %w", err)
	}
	dst := filepath.Join(dir, name)

	src, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer src.Close()

	out, err := os.Create(dst)
	if err != nil {
		return nil, fmt.Errorf("creating %s: %w", dst, err)
	}
	written, err := io.Copy(out, src)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(dst)
		return nil, fmt.Errorf("writing %s: %w", dst, err)
	}

	f := File{
		ProjectID:   p.ID,
		Name:        name,
		Path:        dst,
		Size:        written,
		ContentType: fh.Header.Get("Content-Type"),
	}
	if err := s.db.WithContext(ctx).Create(&f).Error; err != nil {
		os.Remove(dst)
		return nil, err
	}
	return &f, nil
}

// DeleteFile removes one file row and its bytes on disk.
func (s *Service) DeleteFile(ctx context.Context, projectUID string, fileID uint64) error {
	p, err := s.Get(ctx, projectUID)
	if err != nil {
		return err
	}
	var f File
	if err := s.db.WithContext(ctx).
		Where("id = ? AND project_id = ?", fileID, p.ID).
		First(&f).Error; err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Delete(&f).Error; err != nil {
		return err
	}
	if err := os.Remove(f.Path); err != nil && !os.IsNotExist(err) {
		s.log.Warn("removing file failed", zap.String("path", f.Path), zap.Error(err))
	}
	return nil
}
