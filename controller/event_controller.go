package controller

import (
	"errors"
	"fmt"
	"net/http"

	"helper-push-service/controller/request"
	"helper-push-service/controller/respond"
	"helper-push-service/models"
	"helper-push-service/service/pebble_service"
	pushcenter "helper-push-service/service/push_center"
	"helper-push-service/tool"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// CatalogEntry 事件目录条目视图
type CatalogEntry struct {
	EventType      string   `json:"eventType"`
	Category       string   `json:"category"`
	Channel        string   `json:"channel"`
	DedupWindow    string   `json:"dedupWindow,omitempty"`
	Priority       string   `json:"priority,omitempty"`
	RequiredFields []string `json:"requiredFields,omitempty"`
	UrgencyExempt  bool     `json:"urgencyExempt"`
	RateLimit      string   `json:"rateLimit"`
}

var errUnhealthy = errors.New("unhealthy")

// collectionAdmin 支持集合管理的存储（pebble）
type collectionAdmin interface {
	ListCollections() ([]*pebble_service.CollectionInfo, error)
	ClearCollection(collectionName string) error
}

// DispatchEvent godoc
// @Summary 投递领域事件
// @Description 按事件目录路由：push 事件经调度器推送，realtime 事件发布到实时频道，无渠道事件直接丢弃
// @Tags Events
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body models.DomainEvent true "领域事件"
// @Success 200 {object} respond.Response{data=pushcenter.EventOutcome} "成功响应"
// @Failure 400 {object} respond.Response "事件无效"
// @Failure 401 {object} respond.Response "认证失败"
// @Router /v1/events/dispatch [post]
func DispatchEvent(c *gin.Context) {
	var (
		t     int64 = tool.MakeTimestamp()
		event models.DomainEvent
	)
	if err := c.ShouldBindJSON(&event); err != nil {
		paramError(c, t, err)
		return
	}
	if event.EventID == "" {
		event.EventID = uuid.NewString()
	}

	outcome, err := pushCenter.HandleEvent(c.Request.Context(), &event)
	if err != nil {
		if !pushcenter.IsRetryable(err) {
			paramError(c, t, err)
			return
		}
		c.JSONP(http.StatusOK, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeError))
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(outcome, tool.MakeTimestamp()-t))
}

// GetCatalog godoc
// @Summary 获取事件目录
// @Tags Events
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} respond.Response{data=[]CatalogEntry} "成功响应"
// @Router /v1/catalog [get]
func GetCatalog(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()

	catalog := pushCenter.Catalog()
	entries := catalog.Entries()
	result := make([]CatalogEntry, 0, len(entries))
	for _, e := range entries {
		item := CatalogEntry{
			EventType:      e.Type.String(),
			Category:       string(e.Category),
			Channel:        string(e.Channel),
			Priority:       e.Priority,
			RequiredFields: e.RequiredFields,
			RateLimit:      "unlimited",
		}
		if e.DedupWindow > 0 {
			item.DedupWindow = e.DedupWindow.String()
		}
		if p, ok := catalog.Policy(e.Category); ok {
			item.UrgencyExempt = p.UrgencyExempt
			if !p.RateLimit.Unlimited() {
				item.RateLimit = fmt.Sprintf("%d/%s", p.RateLimit.Ceiling, p.RateLimit.Period)
			}
		}
		result = append(result, item)
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(result, tool.MakeTimestamp()-t))
}

// GetStats godoc
// @Summary 运行统计
// @Tags Events
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} respond.Response "成功响应"
// @Router /v1/stats [get]
func GetStats(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()
	c.JSONP(http.StatusOK, respond.RespSuccess(pushCenter.Stats(), tool.MakeTimestamp()-t))
}

// Health godoc
// @Summary 健康检查
// @Tags System
// @Produce json
// @Success 200 {object} respond.Response "全部依赖正常"
// @Failure 503 {object} respond.Response "存在异常依赖"
// @Router /health [get]
func Health(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()

	checks := pushCenter.HealthCheck(c.Request.Context())
	result := make(map[string]string, len(checks))
	healthy := true
	for name, err := range checks {
		if err != nil {
			healthy = false
			result[name] = err.Error()
			continue
		}
		result[name] = "ok"
	}
	if !healthy {
		c.JSONP(http.StatusServiceUnavailable, respond.RespErrWithData(errUnhealthy, result, tool.MakeTimestamp()-t, respond.HttpsCodeServiceError))
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(result, tool.MakeTimestamp()-t))
}

// ListCollections godoc
// @Summary 列出存储集合
// @Description 仅 pebble 存储支持
// @Tags Admin
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} respond.Response{data=[]pebble_service.CollectionInfo} "成功响应"
// @Router /v1/admin/collections [get]
func ListCollections(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()

	admin, ok := pushCenter.Registry().(collectionAdmin)
	if !ok {
		c.JSONP(http.StatusOK, respond.RespErr(errors.New("当前存储不支持集合管理"), tool.MakeTimestamp()-t, respond.HttpsCodeError))
		return
	}
	collections, err := admin.ListCollections()
	if err != nil {
		c.JSONP(http.StatusOK, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeError))
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(collections, tool.MakeTimestamp()-t))
}

// ClearCollection godoc
// @Summary 清空存储集合
// @Description 仅 pebble 存储支持，清空 delivery_log 会让去重窗口内的事件再次推送
// @Tags Admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Param request body request.ClearCollectionReq true "请求参数"
// @Success 200 {object} respond.Response "成功响应"
// @Router /v1/admin/clear_collection [post]
func ClearCollection(c *gin.Context) {
	var (
		t            int64 = tool.MakeTimestamp()
		requestModel request.ClearCollectionReq
	)
	if err := c.ShouldBindJSON(&requestModel); err != nil {
		paramError(c, t, err)
		return
	}
	admin, ok := pushCenter.Registry().(collectionAdmin)
	if !ok {
		c.JSONP(http.StatusOK, respond.RespErr(errors.New("当前存储不支持集合管理"), tool.MakeTimestamp()-t, respond.HttpsCodeError))
		return
	}
	if err := admin.ClearCollection(requestModel.Collection); err != nil {
		c.JSONP(http.StatusOK, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeError))
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(nil, tool.MakeTimestamp()-t))
}
