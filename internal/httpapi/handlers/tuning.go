package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pmerrell/ollamadesk/internal/common"
	"github.com/pmerrell/ollamadesk/internal/tuning"
)

type tuneRequest struct {
	ProjectUID    string `json:"projectUid" binding:"required"`
	Model         string `json:"model" binding:"required"`
	BaseModelPath string `json:"baseModelPath" binding:"required"`
	OutputPath    string `json:"outputPath" binding:"required"`
}

// CreateTuneJob queues a fine-tuning job. The worker binary picks it up
// from RabbitMQ and drives the trainer microservice.
func (h *Handler) CreateTuneJob(c *gin.Context) {
	if h.Rabbit == nil {
		common.Fail(c, http.StatusServiceUnavailable, 50301, "job queue not configured")
		return
	}

	var req tuneRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	if _, err := h.Projects.Get(c.Request.Context(), req.ProjectUID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "project not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	jobID, err := common.NewULID()
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	j := &tuning.Job{
		ID:            jobID,
		ProjectUID:    req.ProjectUID,
		Model:         req.Model,
		BaseModelPath: req.BaseModelPath,
		OutputPath:    req.OutputPath,
		Status:        tuning.JobQueued,
	}
	if err := h.Tuning.CreateJob(c.Request.Context(), j); err != nil {
		h.Log.Error("creating job failed", zap.String("job", jobID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}

	if err := h.Rabbit.PublishJob(c.Request.Context(), jobID); err != nil {
		h.Log.Error("enqueueing job failed", zap.String("job", jobID), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50002, "enqueue failed")
		return
	}

	common.Ok(c, gin.H{"jobId": jobID})
}

func (h *Handler) ListTuneJobs(c *gin.Context) {
	jobs, err := h.Tuning.ListJobs(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, jobs)
}

func (h *Handler) GetTuneJob(c *gin.Context) {
	id := c.Param("id")

	j, err := h.Tuning.GetJobByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40405, "job not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, j)
}
