package respond

const (
	HttpsCodeSuccess      = 0
	HttpsCodeError        = -1
	HttpsCodeParamError   = 400
	HttpsCodeAuthError    = 401
	HttpsCodeNotFound     = 404
	HttpsCodeServiceError = 503

	RespMessageSuccess = "success"
)
