package handler_service

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"helper-push-service/models"
	ec "helper-push-service/service/event_catalog"
)

var (
	ErrNoHandler     = errors.New("no payload handler for event type")
	ErrMissingField  = errors.New("payload is missing a required field")
	ErrNotPushSource = errors.New("event type is not push-owned")
)

// Content handler 产出的推送内容
type Content struct {
	Title string
	Body  string
	Data  map[string]string
}

// BuildFunc 单个事件的 payload 构建函数，纯函数，不做任何 I/O
type BuildFunc func(subject models.SubjectContext, recipientID string) map[string]string

// 注册表按事件类型索引，长度与枚举一致；非推送事件为 nil
var registry = [...]BuildFunc{
	ec.HelperApplied:         buildHelperApplied,
	ec.BidAccepted:           buildBidAccepted,
	ec.JobOffered:            buildJobOffered,
	ec.JobStarted:            buildJobProgress,
	ec.JobCompleted:          buildJobProgress,
	ec.JobCancelled:          buildJobCancelled,
	ec.NewJobNearby:          buildNewJobNearby,
	ec.PaymentPending:        buildPaymentPending,
	ec.PaymentReleased:       buildPaymentReleased,
	ec.PaymentCredited:       buildPaymentCredited,
	ec.SOSRaised:             buildSOSRaised,
	ec.ChatMessage:           nil,
	ec.HelperLocationUpdated: nil,
	ec.ApplicationViewed:     nil,
}

var _ = [1]struct{}{}[len(registry)-ec.EventTypeCount]
var _ = [1]struct{}{}[ec.EventTypeCount-len(registry)]

// HandlerFor 查询事件的构建函数
func HandlerFor(t ec.EventType) (BuildFunc, bool) {
	if !t.Valid() || int(t) >= len(registry) || registry[t] == nil {
		return nil, false
	}
	return registry[t], true
}

// Build 构建推送内容并按目录声明校验必填字段
func Build(catalog *ec.Catalog, t ec.EventType, subject models.SubjectContext, recipientID string) (*Content, error) {
	entry, err := catalog.Lookup(t)
	if err != nil {
		return nil, err
	}
	if entry.Channel != ec.ChannelPush {
		return nil, fmt.Errorf("%w: %s", ErrNotPushSource, t)
	}
	build, ok := HandlerFor(t)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoHandler, t)
	}

	data := build(subject, recipientID)
	if err := CheckRequired(entry, data); err != nil {
		return nil, err
	}

	return &Content{
		Title: ec.Render(entry.TitleTemplate, data),
		Body:  ec.Render(entry.BodyTemplate, data),
		Data:  data,
	}, nil
}

// CheckRequired 校验 data 覆盖目录声明的全部必填字段
func CheckRequired(entry ec.Entry, data map[string]string) error {
	var missing []string
	for _, f := range entry.RequiredFields {
		if strings.TrimSpace(data[f]) == "" {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s needs %s", ErrMissingField, entry.Type, strings.Join(missing, ","))
	}
	return nil
}

func buildHelperApplied(s models.SubjectContext, _ string) map[string]string {
	return withExtra(s, map[string]string{
		ec.FieldID:         s.SubjectID,
		ec.FieldJobID:      s.JobID,
		ec.FieldJobTitle:   s.JobTitle,
		ec.FieldHelperID:   s.ActorID,
		ec.FieldHelperName: s.ActorName,
		ec.FieldOccurredAt: formatTime(s.OccurredAt),
	})
}

func buildBidAccepted(s models.SubjectContext, _ string) map[string]string {
	data := map[string]string{
		ec.FieldID:         s.SubjectID,
		ec.FieldJobID:      s.JobID,
		ec.FieldJobTitle:   s.JobTitle,
		ec.FieldPosterName: s.ActorName,
		ec.FieldOccurredAt: formatTime(s.OccurredAt),
	}
	putAmount(data, s)
	return withExtra(s, data)
}

func buildJobOffered(s models.SubjectContext, _ string) map[string]string {
	data := map[string]string{
		ec.FieldID:            s.SubjectID,
		ec.FieldJobID:         s.JobID,
		ec.FieldJobTitle:      s.JobTitle,
		ec.FieldPosterName:    s.ActorName,
		ec.FieldLocationLabel: s.LocationLabel,
		ec.FieldExpiresAt:     formatTime(s.ExpiresAt),
	}
	putAmount(data, s)
	return withExtra(s, data)
}

// 开工 / 完工共用，对方名称优先取收件人维度的显示名
func buildJobProgress(s models.SubjectContext, recipientID string) map[string]string {
	data := map[string]string{
		ec.FieldID:          s.SubjectID,
		ec.FieldJobTitle:    s.JobTitle,
		ec.FieldCounterpart: counterpart(s, recipientID),
		ec.FieldOccurredAt:  formatTime(s.OccurredAt),
	}
	if s.Status != "" {
		data[ec.FieldStatus] = s.Status
	}
	return withExtra(s, data)
}

func buildJobCancelled(s models.SubjectContext, recipientID string) map[string]string {
	reason := s.Reason
	if reason == "" {
		reason = "not specified"
	}
	return withExtra(s, map[string]string{
		ec.FieldID:          s.SubjectID,
		ec.FieldJobTitle:    s.JobTitle,
		ec.FieldCounterpart: counterpart(s, recipientID),
		ec.FieldReason:      reason,
		ec.FieldOccurredAt:  formatTime(s.OccurredAt),
	})
}

func buildNewJobNearby(s models.SubjectContext, _ string) map[string]string {
	data := map[string]string{
		ec.FieldID:            s.SubjectID,
		ec.FieldJobTitle:      s.JobTitle,
		ec.FieldLocationLabel: s.LocationLabel,
		ec.FieldExpiresAt:     formatTime(s.ExpiresAt),
	}
	if s.DistanceKm > 0 {
		data[ec.FieldDistance] = strconv.FormatFloat(s.DistanceKm, 'f', 1, 64)
	}
	putAmount(data, s)
	return withExtra(s, data)
}

func buildPaymentPending(s models.SubjectContext, _ string) map[string]string {
	data := map[string]string{
		ec.FieldID:        s.SubjectID,
		ec.FieldJobID:     s.JobID,
		ec.FieldJobTitle:  s.JobTitle,
		ec.FieldExpiresAt: formatTime(s.ExpiresAt),
	}
	putAmount(data, s)
	return withExtra(s, data)
}

func buildPaymentReleased(s models.SubjectContext, _ string) map[string]string {
	data := map[string]string{
		ec.FieldID:         s.SubjectID,
		ec.FieldJobID:      s.JobID,
		ec.FieldJobTitle:   s.JobTitle,
		ec.FieldPosterName: s.ActorName,
		ec.FieldOccurredAt: formatTime(s.OccurredAt),
	}
	putAmount(data, s)
	return withExtra(s, data)
}

func buildPaymentCredited(s models.SubjectContext, _ string) map[string]string {
	data := map[string]string{
		ec.FieldID:         s.SubjectID,
		ec.FieldOccurredAt: formatTime(s.OccurredAt),
	}
	if s.JobTitle != "" {
		data[ec.FieldJobTitle] = s.JobTitle
	}
	putAmount(data, s)
	return withExtra(s, data)
}

func buildSOSRaised(s models.SubjectContext, _ string) map[string]string {
	data := map[string]string{
		ec.FieldID:            s.SubjectID,
		ec.FieldRequesterName: s.ActorName,
		ec.FieldLocationLabel: s.LocationLabel,
		ec.FieldOccurredAt:    formatTime(s.OccurredAt),
	}
	// 坐标缺失时不写入，交给必填校验拦截，避免推出 (0, 0)
	if s.Latitude != nil {
		data[ec.FieldLatitude] = strconv.FormatFloat(*s.Latitude, 'f', 6, 64)
	}
	if s.Longitude != nil {
		data[ec.FieldLongitude] = strconv.FormatFloat(*s.Longitude, 'f', 6, 64)
	}
	return withExtra(s, data)
}

func counterpart(s models.SubjectContext, recipientID string) string {
	if name := s.RecipientNames[recipientID]; name != "" {
		return name
	}
	return s.ActorName
}

// putAmount 金额统一两位小数，附带展示串；未提供金额时不写入
func putAmount(data map[string]string, s models.SubjectContext) {
	data[ec.FieldCurrency] = s.Currency
	if !s.Amount.Valid {
		return
	}
	amount := s.Amount.Decimal.StringFixed(2)
	data[ec.FieldAmount] = amount
	if s.Currency != "" {
		data[ec.FieldAmountDisplay] = s.Currency + " " + amount
	} else {
		data[ec.FieldAmountDisplay] = amount
	}
}

// withExtra 合并额外字段，不覆盖已有字段
func withExtra(s models.SubjectContext, data map[string]string) map[string]string {
	for k, v := range s.Extra {
		if _, exists := data[k]; !exists {
			data[k] = v
		}
	}
	return data
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
