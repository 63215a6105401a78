package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pmerrell/ollamadesk/internal/common"
)

func (h *Handler) ListModelfiles(c *gin.Context) {
	out, err := h.Modelfiles.List(c.Request.Context())
	if err != nil {
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, out)
}

type createModelfileRequest struct {
	Name      string `json:"name" binding:"required"`
	BaseModel string `json:"baseModel" binding:"required"`
	System    string `json:"system" binding:"required"`
}

func (h *Handler) CreateModelfile(c *gin.Context) {
	var req createModelfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	m, err := h.Modelfiles.Create(c.Request.Context(), req.Name, req.BaseModel, req.System)
	if err != nil {
		h.Log.Error("creating modelfile failed", zap.String("name", req.Name), zap.Error(err))
		common.Fail(c, http.StatusBadGateway, 50203, "creating modelfile failed")
		return
	}
	common.Ok(c, m)
}

type updateModelfileRequest struct {
	BaseModel string `json:"baseModel"`
	System    string `json:"system"`
}

func (h *Handler) UpdateModelfile(c *gin.Context) {
	uid := c.Param("uid")

	var req updateModelfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 10001, "invalid json")
		return
	}

	m, err := h.Modelfiles.Update(c.Request.Context(), uid, req.BaseModel, req.System)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "modelfile not found")
			return
		}
		h.Log.Error("updating modelfile failed", zap.String("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusBadGateway, 50203, "updating modelfile failed")
		return
	}
	common.Ok(c, m)
}

func (h *Handler) DeleteModelfile(c *gin.Context) {
	uid := c.Param("uid")

	if err := h.Modelfiles.Delete(c.Request.Context(), uid); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			common.Fail(c, http.StatusNotFound, 40402, "modelfile not found")
			return
		}
		h.Log.Error("deleting modelfile failed", zap.String("uid", uid), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 50001, "internal error")
		return
	}
	common.Ok(c, gin.H{"uid": uid})
}
