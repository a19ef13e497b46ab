package event_catalog

import "time"

// payload data 字段名
const (
	FieldID            = "id"
	FieldJobID         = "job_id"
	FieldJobTitle      = "job_title"
	FieldHelperID      = "helper_id"
	FieldHelperName    = "helper_name"
	FieldPosterName    = "poster_name"
	FieldCounterpart   = "counterpart_name"
	FieldAmount        = "amount"
	FieldCurrency      = "currency"
	FieldAmountDisplay = "amount_display"
	FieldLocationLabel = "location_label"
	FieldDistance      = "distance_km"
	FieldExpiresAt     = "expires_at"
	FieldOccurredAt    = "occurred_at"
	FieldReason        = "reason"
	FieldStatus        = "status"
	FieldRequesterName = "requester_name"
	FieldLatitude      = "latitude"
	FieldLongitude     = "longitude"
	FieldSenderName    = "sender_name"
	FieldPreview       = "preview"
	FieldViewerName    = "viewer_name"
)

// Android 通知渠道
const (
	androidChannelJobs     = "jobs"
	androidChannelPayments = "payments"
	androidChannelAlerts   = "alerts"
	androidChannelSOS      = "sos"
)

var defaultCategories = []CategoryPolicy{
	{Category: CategoryJobActivity, RateLimit: RateLimit{Ceiling: 30, Period: time.Hour}},
	{Category: CategoryJobAlert, UrgencyExempt: true, RateLimit: RateLimit{Ceiling: 10, Period: time.Hour}},
	{Category: CategoryPayment, RateLimit: RateLimit{Ceiling: 20, Period: time.Hour}},
	{Category: CategorySOS, UrgencyExempt: true},
	{Category: CategoryChat},
	{Category: CategoryEngagement, RateLimit: RateLimit{Ceiling: 5, Period: 24 * time.Hour}},
}

var defaultEntries = [...]Entry{
	HelperApplied: {
		Type:          HelperApplied,
		Category:      CategoryJobActivity,
		Channel:       ChannelPush,
		TitleTemplate: "New applicant",
		BodyTemplate:  "{helper_name} applied to {job_title}",
		RequiredFields: []string{
			FieldID, FieldJobID, FieldJobTitle, FieldHelperID, FieldHelperName, FieldOccurredAt,
		},
		DedupWindow:    10 * time.Minute,
		Priority:       PriorityNormal,
		AndroidChannel: androidChannelJobs,
		Sound:          "default",
		TTL:            24 * time.Hour,
		EntityKind:     "application",
	},
	BidAccepted: {
		Type:          BidAccepted,
		Category:      CategoryJobActivity,
		Channel:       ChannelPush,
		TitleTemplate: "Bid accepted",
		BodyTemplate:  "{poster_name} accepted your bid of {amount_display} for {job_title}",
		RequiredFields: []string{
			FieldID, FieldJobID, FieldJobTitle, FieldPosterName, FieldAmount, FieldCurrency,
			FieldAmountDisplay, FieldOccurredAt,
		},
		DedupWindow:    10 * time.Minute,
		Priority:       PriorityHigh,
		AndroidChannel: androidChannelJobs,
		Sound:          "default",
		TTL:            24 * time.Hour,
		EntityKind:     "bid",
	},
	JobOffered: {
		Type:          JobOffered,
		Category:      CategoryJobActivity,
		Channel:       ChannelPush,
		TitleTemplate: "Job offer",
		BodyTemplate:  "{poster_name} offered you {job_title} for {amount_display}",
		RequiredFields: []string{
			FieldID, FieldJobID, FieldJobTitle, FieldPosterName, FieldAmount, FieldCurrency,
			FieldAmountDisplay, FieldLocationLabel, FieldExpiresAt,
		},
		DedupWindow:    30 * time.Minute,
		Priority:       PriorityHigh,
		AndroidChannel: androidChannelJobs,
		Sound:          "default",
		TTL:            2 * time.Hour,
		EntityKind:     "offer",
	},
	JobStarted: {
		Type:           JobStarted,
		Category:       CategoryJobActivity,
		Channel:        ChannelPush,
		TitleTemplate:  "Job started",
		BodyTemplate:   "{counterpart_name} started {job_title}",
		RequiredFields: []string{FieldID, FieldJobTitle, FieldCounterpart, FieldOccurredAt},
		DedupWindow:    15 * time.Minute,
		Priority:       PriorityNormal,
		AndroidChannel: androidChannelJobs,
		Sound:          "default",
		TTL:            6 * time.Hour,
		EntityKind:     "job",
	},
	JobCompleted: {
		Type:           JobCompleted,
		Category:       CategoryJobActivity,
		Channel:        ChannelPush,
		TitleTemplate:  "Job completed",
		BodyTemplate:   "{counterpart_name} marked {job_title} as completed",
		RequiredFields: []string{FieldID, FieldJobTitle, FieldCounterpart, FieldOccurredAt},
		DedupWindow:    15 * time.Minute,
		Priority:       PriorityNormal,
		AndroidChannel: androidChannelJobs,
		Sound:          "default",
		TTL:            24 * time.Hour,
		EntityKind:     "job",
	},
	JobCancelled: {
		Type:          JobCancelled,
		Category:      CategoryJobActivity,
		Channel:       ChannelPush,
		TitleTemplate: "Job cancelled",
		BodyTemplate:  "{counterpart_name} cancelled {job_title}",
		RequiredFields: []string{
			FieldID, FieldJobTitle, FieldCounterpart, FieldReason, FieldOccurredAt,
		},
		DedupWindow:    15 * time.Minute,
		Priority:       PriorityHigh,
		AndroidChannel: androidChannelJobs,
		Sound:          "default",
		TTL:            24 * time.Hour,
		EntityKind:     "job",
	},
	NewJobNearby: {
		Type:          NewJobNearby,
		Category:      CategoryJobAlert,
		Channel:       ChannelPush,
		TitleTemplate: "New job near {location_label}",
		BodyTemplate:  "{job_title} · {amount_display}",
		RequiredFields: []string{
			FieldID, FieldJobTitle, FieldAmount, FieldCurrency, FieldAmountDisplay,
			FieldLocationLabel, FieldExpiresAt,
		},
		DedupWindow:        time.Hour,
		Priority:           PriorityHigh,
		AndroidChannel:     androidChannelAlerts,
		Sound:              "job_alert",
		TTL:                time.Hour,
		RecipientInvariant: true,
		EntityKind:         "job",
	},
	PaymentPending: {
		Type:          PaymentPending,
		Category:      CategoryPayment,
		Channel:       ChannelPush,
		TitleTemplate: "Payment pending",
		BodyTemplate:  "{amount_display} for {job_title} is awaiting confirmation",
		RequiredFields: []string{
			FieldID, FieldJobID, FieldJobTitle, FieldAmount, FieldCurrency, FieldAmountDisplay,
			FieldExpiresAt,
		},
		DedupWindow:    time.Hour,
		Priority:       PriorityNormal,
		AndroidChannel: androidChannelPayments,
		Sound:          "default",
		TTL:            24 * time.Hour,
		EntityKind:     "payment",
	},
	PaymentReleased: {
		Type:          PaymentReleased,
		Category:      CategoryPayment,
		Channel:       ChannelPush,
		TitleTemplate: "Payment released",
		BodyTemplate:  "{poster_name} released {amount_display} for {job_title}",
		RequiredFields: []string{
			FieldID, FieldJobID, FieldJobTitle, FieldPosterName, FieldAmount, FieldCurrency,
			FieldAmountDisplay, FieldOccurredAt,
		},
		DedupWindow:    time.Hour,
		Priority:       PriorityHigh,
		AndroidChannel: androidChannelPayments,
		Sound:          "payment",
		TTL:            72 * time.Hour,
		EntityKind:     "payment",
	},
	PaymentCredited: {
		Type:          PaymentCredited,
		Category:      CategoryPayment,
		Channel:       ChannelPush,
		TitleTemplate: "Payment received",
		BodyTemplate:  "{amount_display} was credited to your wallet",
		RequiredFields: []string{
			FieldID, FieldAmount, FieldCurrency, FieldAmountDisplay, FieldOccurredAt,
		},
		DedupWindow:    time.Hour,
		Priority:       PriorityHigh,
		AndroidChannel: androidChannelPayments,
		Sound:          "payment",
		TTL:            72 * time.Hour,
		EntityKind:     "wallet_transaction",
	},
	SOSRaised: {
		Type:          SOSRaised,
		Category:      CategorySOS,
		Channel:       ChannelPush,
		TitleTemplate: "SOS from {requester_name}",
		BodyTemplate:  "{requester_name} needs help at {location_label}",
		RequiredFields: []string{
			FieldID, FieldRequesterName, FieldLocationLabel, FieldLatitude, FieldLongitude,
			FieldOccurredAt,
		},
		DedupWindow:        2 * time.Minute,
		Priority:           PriorityHigh,
		AndroidChannel:     androidChannelSOS,
		Sound:              "sos",
		TTL:                15 * time.Minute,
		RecipientInvariant: true,
		EntityKind:         "sos",
	},
	ChatMessage: {
		Type:       ChatMessage,
		Category:   CategoryChat,
		Channel:    ChannelRealtime,
		EntityKind: "conversation",
	},
	HelperLocationUpdated: {
		Type:       HelperLocationUpdated,
		Category:   CategoryJobActivity,
		Channel:    ChannelRealtime,
		EntityKind: "job",
	},
	ApplicationViewed: {
		Type:     ApplicationViewed,
		Category: CategoryEngagement,
		Channel:  ChannelNone,
	},
}

var _ = [1]struct{}{}[len(defaultEntries)-int(eventTypeCount)]
var _ = [1]struct{}{}[int(eventTypeCount)-len(defaultEntries)]
