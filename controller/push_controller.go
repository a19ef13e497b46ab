package controller

import (
	"errors"
	"net/http"
	"time"

	"helper-push-service/controller/request"
	"helper-push-service/controller/respond"
	"helper-push-service/models"
	"helper-push-service/tool"

	"github.com/gin-gonic/gin"
)

// RegisterDevice godoc
// @Summary 注册设备推送令牌
// @Description 注册或重新激活推送令牌。Token本身就是设备的唯一标识，如果Token已被其他用户使用，会迁移到当前用户。
// @Tags Push API
// @Accept json
// @Produce json
// @Param X-Signature header string true "secp256k1 签名（DER hex）"
// @Param X-Public-Key header string true "压缩公钥 hex"
// @Param X-Timestamp header string true "毫秒时间戳"
// @Param request body request.RegisterDeviceReq true "请求参数（userId、platform、token）"
// @Success 200 {object} respond.Response "成功响应"
// @Failure 400 {object} respond.Response "参数错误"
// @Failure 401 {object} respond.Response "认证失败"
// @Router /v1/push/register_device [post]
func RegisterDevice(c *gin.Context) {
	var (
		t            int64 = tool.MakeTimestamp()
		requestModel request.RegisterDeviceReq
	)
	if err := c.ShouldBindJSON(&requestModel); err != nil {
		paramError(c, t, err)
		return
	}
	platform, ok := models.ParsePlatform(requestModel.Platform)
	if !ok {
		c.JSONP(http.StatusBadRequest, respond.RespErr(models.ErrInvalidPlatform, tool.MakeTimestamp()-t, respond.HttpsCodeParamError))
		return
	}

	err := pushCenter.Registry().RegisterDevice(c.Request.Context(), &models.DeviceTarget{
		UserID:   requestModel.UserID,
		Token:    requestModel.Token,
		Platform: platform,
	})
	if err != nil {
		c.JSONP(http.StatusOK, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeError))
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(map[string]interface{}{
		"success": true,
		"message": "设备注册成功",
	}, tool.MakeTimestamp()-t))
}

// Heartbeat godoc
// @Summary 设备心跳
// @Description 刷新令牌最近活跃时间
// @Tags Push API
// @Accept json
// @Produce json
// @Param X-Signature header string true "secp256k1 签名（DER hex）"
// @Param X-Public-Key header string true "压缩公钥 hex"
// @Param X-Timestamp header string true "毫秒时间戳"
// @Param request body request.HeartbeatReq true "请求参数"
// @Success 200 {object} respond.Response "成功响应"
// @Failure 404 {object} respond.Response "令牌不存在"
// @Router /v1/push/heartbeat [post]
func Heartbeat(c *gin.Context) {
	var (
		t            int64 = tool.MakeTimestamp()
		requestModel request.HeartbeatReq
	)
	if err := c.ShouldBindJSON(&requestModel); err != nil {
		paramError(c, t, err)
		return
	}
	err := pushCenter.Registry().Heartbeat(c.Request.Context(), requestModel.Token, time.Now())
	if errors.Is(err, models.ErrTargetNotFound) {
		c.JSONP(http.StatusNotFound, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeNotFound))
		return
	}
	if err != nil {
		c.JSONP(http.StatusOK, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeError))
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(nil, tool.MakeTimestamp()-t))
}

// DeactivateDevice godoc
// @Summary 注销设备
// @Description 用户登出时停用令牌，重复调用无副作用
// @Tags Push API
// @Accept json
// @Produce json
// @Param X-Signature header string true "secp256k1 签名（DER hex）"
// @Param X-Public-Key header string true "压缩公钥 hex"
// @Param X-Timestamp header string true "毫秒时间戳"
// @Param request body request.DeactivateDeviceReq true "请求参数"
// @Success 200 {object} respond.Response "成功响应"
// @Failure 401 {object} respond.Response "认证失败"
// @Router /v1/push/deactivate_device [post]
func DeactivateDevice(c *gin.Context) {
	var (
		t            int64 = tool.MakeTimestamp()
		requestModel request.DeactivateDeviceReq
	)
	if err := c.ShouldBindJSON(&requestModel); err != nil {
		paramError(c, t, err)
		return
	}
	if err := pushCenter.Registry().DeactivateTarget(c.Request.Context(), requestModel.Token); err != nil {
		c.JSONP(http.StatusOK, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeError))
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(nil, tool.MakeTimestamp()-t))
}

// GetUserDevices godoc
// @Summary 获取用户设备列表
// @Description 返回用户全部令牌，包括已停用的
// @Tags Push API
// @Produce json
// @Security ApiKeyAuth
// @Param userId query string true "用户ID"
// @Success 200 {object} respond.Response{data=[]models.DeviceTarget} "成功响应"
// @Failure 400 {object} respond.Response "参数错误"
// @Router /v1/push/get_user_devices [get]
func GetUserDevices(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()

	userID := c.Query("userId")
	if userID == "" {
		paramError(c, t, errors.New("userId 参数不能为空"))
		return
	}
	devices, err := pushCenter.Registry().UserDevices(c.Request.Context(), userID)
	if err != nil {
		c.JSONP(http.StatusOK, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeError))
		return
	}
	if devices == nil {
		devices = []models.DeviceTarget{}
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(devices, tool.MakeTimestamp()-t))
}

// SetQuietHours godoc
// @Summary 设置免打扰时段
// @Description 开始大于结束时表示跨零点，时区为空时按 UTC
// @Tags Push API
// @Accept json
// @Produce json
// @Param X-Signature header string true "secp256k1 签名（DER hex）"
// @Param X-Public-Key header string true "压缩公钥 hex"
// @Param X-Timestamp header string true "毫秒时间戳"
// @Param request body request.SetQuietHoursReq true "请求参数"
// @Success 200 {object} respond.Response "成功响应"
// @Failure 400 {object} respond.Response "参数错误"
// @Router /v1/push/set_quiet_hours [post]
func SetQuietHours(c *gin.Context) {
	var (
		t            int64 = tool.MakeTimestamp()
		requestModel request.SetQuietHoursReq
	)
	if err := c.ShouldBindJSON(&requestModel); err != nil {
		paramError(c, t, err)
		return
	}
	if requestModel.Timezone != "" {
		if _, err := time.LoadLocation(requestModel.Timezone); err != nil {
			paramError(c, t, err)
			return
		}
	}
	err := pushCenter.Registry().SetQuietHours(c.Request.Context(), &models.QuietHours{
		UserID:      requestModel.UserID,
		StartMinute: requestModel.StartMinute,
		EndMinute:   requestModel.EndMinute,
		Timezone:    requestModel.Timezone,
		Enabled:     requestModel.Enabled,
	})
	if err != nil {
		c.JSONP(http.StatusOK, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeError))
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(nil, tool.MakeTimestamp()-t))
}

// GetQuietHours godoc
// @Summary 获取免打扰时段
// @Tags Push API
// @Produce json
// @Security ApiKeyAuth
// @Param userId query string true "用户ID"
// @Success 200 {object} respond.Response{data=models.QuietHours} "成功响应，未设置时 data 为 null"
// @Router /v1/push/get_quiet_hours [get]
func GetQuietHours(c *gin.Context) {
	var t int64 = tool.MakeTimestamp()

	userID := c.Query("userId")
	if userID == "" {
		paramError(c, t, errors.New("userId 参数不能为空"))
		return
	}
	qh, err := pushCenter.Registry().QuietHours(c.Request.Context(), userID)
	if err != nil {
		c.JSONP(http.StatusOK, respond.RespErr(err, tool.MakeTimestamp()-t, respond.HttpsCodeError))
		return
	}
	c.JSONP(http.StatusOK, respond.RespSuccess(qh, tool.MakeTimestamp()-t))
}

func paramError(c *gin.Context, start int64, err error) {
	c.JSONP(http.StatusBadRequest, respond.RespErr(err, tool.MakeTimestamp()-start, respond.HttpsCodeParamError))
}
