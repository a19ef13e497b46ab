package respond

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestRespErrNeverCarriesSuccessCode(t *testing.T) {
	msg := RespErr(errors.New("boom"), 3, HttpsCodeSuccess)
	if msg.Code != HttpsCodeError || msg.Message != "boom" || msg.Data != nil {
		t.Errorf("RespErr = %+v", msg)
	}
}

func TestRespErrWithDataEnvelope(t *testing.T) {
	msg := RespErrWithData(errors.New("unhealthy"), map[string]string{"store": "down"}, 7, HttpsCodeServiceError)

	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatal(err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatal(err)
	}
	if decoded["code"] != float64(HttpsCodeServiceError) || decoded["processingTime"] != float64(7) {
		t.Errorf("envelope = %s", raw)
	}
	if data, _ := decoded["data"].(map[string]any); data["store"] != "down" {
		t.Errorf("data = %v", decoded["data"])
	}
}

func TestAuthErrorMatchesByType(t *testing.T) {
	var authErr *AuthError
	if !errors.As(error(NewAuthError("缺少签名信息")), &authErr) || authErr.Error() != "缺少签名信息" {
		t.Errorf("AuthError = %v", authErr)
	}
}
