package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pmerrell/ollamadesk/internal/common"
)

const modelCacheKey = "ollamadesk:models"

// ListModels proxies the backend's model listing. When redis is configured
// the (small, slow-changing) list is cached.
func (h *Handler) ListModels(c *gin.Context) {
	ctx := c.Request.Context()

	if cached, ok := h.Cache.Get(ctx, modelCacheKey); ok {
		var names []string
		if err := json.Unmarshal([]byte(cached), &names); err == nil {
			common.Ok(c, names)
			return
		}
	}

	names, err := h.LLM.ListModels(ctx)
	if err != nil {
		h.Log.Error("listing models failed", zap.Error(err))
		common.Fail(c, http.StatusBadGateway, 50202, "inference backend error")
		return
	}

	if b, err := json.Marshal(names); err == nil {
		h.Cache.Set(ctx, modelCacheKey, string(b),
			time.Duration(h.Cfg.ModelCacheTTLSeconds)*time.Second)
	}
	common.Ok(c, names)
}
