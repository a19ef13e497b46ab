package respond

// Message 通用响应结构
// @Description 统一的 API 响应格式
type Message struct {
	Code           int    `json:"code" example:"0" description:"响应代码，0表示成功"`
	Message        string `json:"message" example:"success" description:"响应消息"`
	ProcessingTime int64  `json:"processingTime" example:"123" description:"处理时间（毫秒）"`
	Data           any    `json:"data" description:"响应数据"`
}

// Response 文档中引用的名称
type Response = Message

// AuthError 鉴权失败，中间件据此返回 HttpsCodeAuthError
type AuthError struct {
	reason string
}

func NewAuthError(reason string) *AuthError {
	return &AuthError{reason: reason}
}

func (e *AuthError) Error() string {
	return e.reason
}

func RespSuccess(data any, elapsed int64) Message {
	return Message{
		Code:           HttpsCodeSuccess,
		Message:        RespMessageSuccess,
		ProcessingTime: elapsed,
		Data:           data,
	}
}

// RespErr code 为 0 时按 HttpsCodeError 处理，错误响应不能带成功码
func RespErr(err error, elapsed int64, code int) Message {
	return RespErrWithData(err, nil, elapsed, code)
}

// RespErrWithData 错误响应附带明细，例如健康检查各依赖的状态
func RespErrWithData(err error, data any, elapsed int64, code int) Message {
	if code == HttpsCodeSuccess {
		code = HttpsCodeError
	}
	return Message{
		Code:           code,
		Message:        err.Error(),
		ProcessingTime: elapsed,
		Data:           data,
	}
}
