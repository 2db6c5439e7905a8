package router

import (
	"context"
	"errors"

	"cv-scoring-go/internal/api/handler"
	"cv-scoring-go/internal/config"
	"cv-scoring-go/internal/processor"
	"cv-scoring-go/internal/types"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/utils"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/hertz-contrib/keyauth"
)

// RegisterRoutes 注册 API 路由
func RegisterRoutes(h *server.Hertz, cfg *config.Config, scoreHandler *handler.ScoreHandler) {
	// 健康检查不做鉴权
	public := h.Group("/api/v1")
	public.GET("/health", func(c context.Context, ctx *app.RequestContext) {
		ctx.JSON(consts.StatusOK, utils.H{"status": "ok"})
	})

	api := h.Group("/api/v1")
	if len(cfg.Server.APIKeys) > 0 {
		api.Use(apiKeyMiddleware(cfg.Server.APIKeys))
	}

	api.POST("/score", func(c context.Context, ctx *app.RequestContext) {
		var req types.ScoreBatchRequest
		if err := ctx.BindAndValidate(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
			return
		}

		result, err := scoreHandler.HandleScoreBatch(c, &req)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, result)
	})

	api.POST("/score/async", func(c context.Context, ctx *app.RequestContext) {
		var req types.ScoreBatchRequest
		if err := ctx.BindAndValidate(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
			return
		}

		resp, err := scoreHandler.HandleAsyncSubmit(c, &req)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusAccepted, resp)
	})

	api.GET("/score/reports/:batch_id", func(c context.Context, ctx *app.RequestContext) {
		batchID := ctx.Param("batch_id")

		resp, err := scoreHandler.HandleGetReport(c, batchID)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/resume/extract", func(c context.Context, ctx *app.RequestContext) {
		var req handler.ExtractRequest
		if err := ctx.BindAndValidate(&req); err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "请求体解析失败: " + err.Error()})
			return
		}

		resp, err := scoreHandler.HandleExtract(c, &req)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})

	api.POST("/resume/upload", func(c context.Context, ctx *app.RequestContext) {
		fileHeader, err := ctx.FormFile("file")
		if err != nil {
			ctx.JSON(consts.StatusBadRequest, utils.H{"error": "文件未找到"})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			ctx.JSON(consts.StatusInternalServerError, utils.H{"error": "打开文件失败"})
			return
		}
		defer file.Close()

		resp, err := scoreHandler.HandleResumeExtractUpload(c, file, fileHeader.Filename)
		if err != nil {
			writeError(ctx, err)
			return
		}
		ctx.JSON(consts.StatusOK, resp)
	})
}

// apiKeyMiddleware 基于 X-API-Key 请求头的固定密钥鉴权
func apiKeyMiddleware(keys []string) app.HandlerFunc {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}
	return keyauth.New(
		keyauth.WithKeyLookUp("header:X-API-Key", ""),
		keyauth.WithValidator(func(c context.Context, ctx *app.RequestContext, key string) (bool, error) {
			_, ok := allowed[key]
			return ok, nil
		}),
	)
}

// writeError 把业务错误映射为HTTP状态码。
// 向量化服务不可用是服务级故障，返回503让客户端重试。
func writeError(ctx *app.RequestContext, err error) {
	switch {
	case errors.Is(err, processor.ErrEmbeddingUnavailable):
		ctx.JSON(consts.StatusServiceUnavailable, utils.H{
			"error":  "向量化服务不可用，请稍后重试",
			"detail": err.Error(),
		})
	case errors.Is(err, processor.ErrEmptyBatch), errors.Is(err, handler.ErrInvalidRequest):
		ctx.JSON(consts.StatusBadRequest, utils.H{"error": err.Error()})
	case errors.Is(err, handler.ErrBatchNotFound):
		ctx.JSON(consts.StatusNotFound, utils.H{"error": err.Error()})
	case errors.Is(err, processor.ErrRequirementExtraction):
		ctx.JSON(consts.StatusBadGateway, utils.H{"error": err.Error()})
	default:
		ctx.JSON(consts.StatusInternalServerError, utils.H{"error": err.Error()})
	}
}
