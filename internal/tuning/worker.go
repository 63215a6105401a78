package tuning

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/pmerrell/ollamadesk/internal/project"
)

// Worker executes queued jobs: it gathers the project's staged files, calls
// the trainer, and mirrors the progress stream into the job row.
type Worker struct {
	repo     *Repo
	projects *project.Service
	trainer  *TrainerClient
	log      *zap.Logger
}

func NewWorker(repo *Repo, projects *project.Service, trainer *TrainerClient, log *zap.Logger) *Worker {
	return &Worker{repo: repo, projects: projects, trainer: trainer, log: log}
}

func (w *Worker) HandleJob(ctx context.Context, jobID string) error {
	_ = w.repo.MarkJobRunning(ctx, jobID)

	j, err := w.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}

	paths, err := w.projects.FilePaths(ctx, j.ProjectUID)
	if err != nil {
		_ = w.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}
	if len(paths) == 0 {
		err := errors.New("project has no staged files")
		_ = w.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	trainedDir, err := w.trainer.Train(ctx, j.ProjectUID, j.Model,
		j.BaseModelPath, j.OutputPath, paths,
		func(progress float64) {
			if perr := w.repo.UpdateProgress(ctx, jobID, progress); perr != nil {
				w.log.Warn("updating job progress failed",
					zap.String("job", jobID), zap.Error(perr))
			}
		})
	if err != nil {
		_ = w.repo.MarkJobFailed(ctx, jobID, err.Error())
		return err
	}

	if err := w.repo.MarkJobSucceeded(ctx, jobID, trainedDir); err != nil {
		return fmt.Errorf("marking job %s succeeded: %w", jobID, err)
	}
	w.log.Info("job finished", zap.String("job", jobID), zap.String("dir", trainedDir))
	return nil
}
