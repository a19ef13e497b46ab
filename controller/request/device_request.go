package request

// RegisterDeviceReq 注册设备推送令牌请求参数
type RegisterDeviceReq struct {
	UserID   string `json:"userId" binding:"required"`
	Platform string `json:"platform" binding:"required"` // android / ios
	Token    string `json:"token" binding:"required"`    // Token本身就是设备的唯一标识
}

// HeartbeatReq 设备心跳请求参数
type HeartbeatReq struct {
	Token string `json:"token" binding:"required"`
}

// DeactivateDeviceReq 注销设备请求参数
type DeactivateDeviceReq struct {
	Token string `json:"token" binding:"required"`
}

// SetQuietHoursReq 设置免打扰时段请求参数，分钟数为当地时间 0-1439
type SetQuietHoursReq struct {
	UserID      string `json:"userId" binding:"required"`
	StartMinute int    `json:"startMinute" binding:"min=0,max=1439"`
	EndMinute   int    `json:"endMinute" binding:"min=0,max=1439"`
	Timezone    string `json:"timezone"`
	Enabled     bool   `json:"enabled"`
}

// ClearCollectionReq 清空集合请求参数
type ClearCollectionReq struct {
	Collection string `json:"collection" binding:"required"`
}
