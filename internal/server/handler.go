package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/hewenyu/ecosystem-discovery/internal/config"
	"github.com/hewenyu/ecosystem-discovery/internal/coordinator"
	"github.com/hewenyu/ecosystem-discovery/internal/core/model"
	"github.com/hewenyu/ecosystem-discovery/internal/registry"
	"github.com/hewenyu/ecosystem-discovery/internal/store/descriptor"
)

// DiscoveryHandler 处理发现相关的HTTP请求
type DiscoveryHandler struct {
	coordinator *coordinator.Coordinator
	registry    registry.Client
	store       descriptor.DescriptorStore
	logger      config.Logger
}

// NewDiscoveryHandler 创建一个新的发现处理器
func NewDiscoveryHandler(coord *coordinator.Coordinator, reg registry.Client, store descriptor.DescriptorStore, logger config.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		coordinator: coord,
		registry:    reg,
		store:       store,
		logger:      logger,
	}
}

// RegisterRoutes 注册API路由
func (h *DiscoveryHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.healthCheck)

	api := e.Group("/api/v1")

	// 批量发现
	api.POST("/discovery/bulk", h.bulkDiscovery)

	// 单服务发现
	api.POST("/discovery/service", h.serviceDiscovery)

	// 注册中心统计
	api.GET("/registry/stats", h.registryStats)

	// 服务描述符目录
	api.GET("/services", h.listServices)
}

// 返回成功响应
func successResponse(code int, message string, data interface{}) *model.ApiResponse {
	return &model.ApiResponse{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// 返回错误响应
func errorResponse(code int, message string) *model.ApiResponse {
	return &model.ApiResponse{
		Code:    code,
		Message: message,
	}
}

// healthCheck 处理健康检查请求
func (h *DiscoveryHandler) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "ecosystem-discovery",
	})
}

// bulkDiscovery 处理批量发现请求
func (h *DiscoveryHandler) bulkDiscovery(c echo.Context) error {
	var req model.BulkDiscoveryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "请求体解析失败: "+err.Error()))
	}

	result, err := h.coordinator.Discover(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, coordinator.ErrInvalidRequest) {
			return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
		}
		h.logger.Error("批量发现执行失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse(http.StatusInternalServerError, "批量发现执行失败: "+err.Error()))
	}

	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "发现完成", result))
}

// serviceDiscovery 处理单服务发现请求
func (h *DiscoveryHandler) serviceDiscovery(c echo.Context) error {
	var req model.SingleDiscoveryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, "请求体解析失败: "+err.Error()))
	}

	result, err := h.coordinator.DiscoverService(c.Request().Context(), &req)
	if err != nil {
		if errors.Is(err, coordinator.ErrInvalidRequest) {
			return c.JSON(http.StatusBadRequest, errorResponse(http.StatusBadRequest, err.Error()))
		}
		h.logger.Error("单服务发现执行失败", zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse(http.StatusInternalServerError, "单服务发现执行失败: "+err.Error()))
	}

	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "发现完成", result))
}

// registryStats 处理注册中心统计查询请求
func (h *DiscoveryHandler) registryStats(c echo.Context) error {
	stats := h.registry.Stats()
	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", stats))
}

// listServices 处理服务描述符目录查询请求
func (h *DiscoveryHandler) listServices(c echo.Context) error {
	services, err := h.store.List(c.Request().Context())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorResponse(http.StatusInternalServerError, "查询服务列表失败: "+err.Error()))
	}

	data := map[string]interface{}{
		"services": services,
		"count":    len(services),
	}

	return c.JSON(http.StatusOK, successResponse(http.StatusOK, "查询成功", data))
}
