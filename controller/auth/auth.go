package auth

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"helper-push-service/conf"
	"helper-push-service/controller/respond"
	"helper-push-service/tool"

	"github.com/gin-gonic/gin"
)

const (
	HeaderAPIKey    = "X-API-KEY"
	HeaderSignature = "X-Signature"
	HeaderPublicKey = "X-Public-Key"
	HeaderTimestamp = "X-Timestamp"

	// ContextPublicKey 验签通过后写入 gin.Context 的公钥
	ContextPublicKey = "publicKey"

	defaultSignatureMaxAge = 5 * time.Minute
	maxSignedBodyBytes     = 64 << 10
)

// SignedMessage 客户端签名内容：毫秒时间戳 + ":" + 原始请求体
func SignedMessage(timestamp string, body []byte) string {
	return timestamp + ":" + string(body)
}

// AuthAPIKeyMiddleware 服务间调用鉴权，未配置 api_key 时拒绝所有请求
func AuthAPIKeyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(HeaderAPIKey)
		if conf.APIKey == "" || key != conf.APIKey {
			abort(c, respond.NewAuthError("无效的 API Key"))
			return
		}
		c.Next()
	}
}

// AuthSignMiddleware 设备请求验签：secp256k1 对 SignedMessage 的签名，时间戳需在有效期内
func AuthSignMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		signature := c.GetHeader(HeaderSignature)
		publicKey := c.GetHeader(HeaderPublicKey)
		timestamp := c.GetHeader(HeaderTimestamp)
		if signature == "" || publicKey == "" || timestamp == "" {
			abort(c, respond.NewAuthError("缺少签名信息"))
			return
		}

		ts, err := strconv.ParseInt(timestamp, 10, 64)
		if err != nil {
			abort(c, respond.NewAuthError("时间戳格式错误"))
			return
		}
		maxAge := conf.SignatureMaxAge
		if maxAge <= 0 {
			maxAge = defaultSignatureMaxAge
		}
		if !tool.TimestampFresh(ts, time.Now(), maxAge) {
			abort(c, respond.NewAuthError("签名已过期"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxSignedBodyBytes))
		if err != nil {
			abort(c, respond.NewAuthError("读取请求体失败"))
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		ok, err := tool.VerifySign(SignedMessage(timestamp, body), signature, publicKey)
		if err != nil || !ok {
			if err == nil {
				err = tool.ErrInvalidSignature
			}
			conf.GetLogger().WithField("path", c.FullPath()).WithError(err).Warn("⚠️ 签名校验失败")
			abort(c, respond.NewAuthError("签名校验失败"))
			return
		}
		c.Set(ContextPublicKey, publicKey)
		c.Next()
	}
}

func abort(c *gin.Context, err error) {
	var authErr *respond.AuthError
	code := respond.HttpsCodeError
	if errors.As(err, &authErr) {
		code = respond.HttpsCodeAuthError
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, respond.RespErr(err, 0, code))
}
