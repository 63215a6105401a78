package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pmerrell/ollamadesk/internal/common"
)

func (h *Handler) ListProjects(c *gin.Context) {
	out, err := h.Projects.List(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, out)
}

func (h *Handler) CreateProject(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	p, err := h.Projects.Create(c.Request.Context(), req.Name)
	if err != nil {
		h.Log.Error("creating project failed", zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, p)
}

func (h *Handler) DeleteProject(c *gin.Context) {
	uid := c.Param("uid")

	if err := h.Projects.Delete(c.Request.Context(), uid); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "project not found")
			return
		}
		h.Log.Error("deleting project failed", zap.String("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, gin.H{"uid": uid})
}

func (h *Handler) ListProjectFiles(c *gin.Context) {
	uid := c.Param("uid")

	files, err := h.Projects.ListFiles(c.Request.Context(), uid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "project not found")
			return
		}
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, files)
}

// UploadProjectFile stages one document under the project's directory.
func (h *Handler) UploadProjectFile(c *gin.Context) {
	uid := c.Param("uid")

	fh, err := c.FormFile("file")
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10003, "file required")
		return
	}

	f, err := h.Projects.SaveUpload(c.Request.Context(), uid, fh)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40403, "project not found")
			return
		}
		h.Log.Error("saving upload failed", zap.String("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, f)
}

func (h *Handler) DeleteProjectFile(c *gin.Context) {
	uid := c.Param("uid")
	fileID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		common.Fail(c, http.StatusBadRequest, 10002, "invalid file id")
		return
	}

	if err := h.Projects.DeleteFile(c.Request.Context(), uid, fileID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40404, "file not found")
			return
		}
		h.Log.Error("deleting file failed", zap.String("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, gin.H{"id": fileID})
}
