package gateway_service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"helper-push-service/conf"

	"golang.org/x/sync/errgroup"
)

// Message is the content shared by every token of a multicast
type Message struct {
	Title          string
	Body           string
	Data           map[string]string
	Priority       string // high | normal
	AndroidChannel string
	Sound          string
	TTL            time.Duration
}

// TokenResult represents the delivery result of one token
type TokenResult struct {
	Token     string
	Success   bool
	ErrorCode string
	MessageID string
	Error     error
}

// Permanent reports whether the token should be deactivated
func (r TokenResult) Permanent() bool {
	return !r.Success && IsPermanentTokenError(r.ErrorCode)
}

// MulticastResult aggregates all batches of one SendMulticast call
type MulticastResult struct {
	Results        []TokenResult // same order as the input tokens
	SuccessCount   int
	FailureCount   int
	Batches        int
	FailedBatches  int // TransportFailure
	PartialBatches int // PartialBatchFailure
	Duration       time.Duration
}

// InvalidTokens returns the tokens the gateway reported as permanently invalid
func (r *MulticastResult) InvalidTokens() []string {
	var tokens []string
	for _, res := range r.Results {
		if res.Permanent() {
			tokens = append(tokens, res.Token)
		}
	}
	return tokens
}

// sender is the single call the service needs from a client
type sender interface {
	Send(ctx context.Context, request *MulticastRequest) (*MulticastResponse, error)
}

// Service splits tokens into batches and sends them concurrently
type Service struct {
	client         sender
	batchSize      int
	maxConcurrency int
	now            func() time.Time
}

// NewService creates the gateway service from config
func NewService(cfg *Config) (*Service, error) {
	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}
	c := *cfg
	c.ApplyDefaults()
	return newService(client, c.BatchSize, c.MaxConcurrency), nil
}

func newService(client sender, batchSize, maxConcurrency int) *Service {
	if batchSize <= 0 || batchSize > MaxTokensPerRequest {
		batchSize = MaxTokensPerRequest
	}
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	return &Service{
		client:         client,
		batchSize:      batchSize,
		maxConcurrency: maxConcurrency,
		now:            time.Now,
	}
}

// SendMulticast sends msg to every token. A failing batch never aborts the others and is
// never replayed here; callers only see per token results and counts.
func (s *Service) SendMulticast(ctx context.Context, msg *Message, tokens []string) *MulticastResult {
	start := s.now()
	result := &MulticastResult{Results: make([]TokenResult, len(tokens))}
	if len(tokens) == 0 {
		return result
	}

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.maxConcurrency)

	for i := 0; i < len(tokens); i += s.batchSize {
		end := i + s.batchSize
		if end > len(tokens) {
			end = len(tokens)
		}
		offset, batch := i, tokens[i:end]
		result.Batches++

		g.Go(func() error {
			batchResults, err := s.sendBatch(ctx, msg, batch)

			mu.Lock()
			defer mu.Unlock()
			copy(result.Results[offset:], batchResults)
			if err != nil {
				result.FailedBatches++
				conf.GetLogger().WithField("batchSize", len(batch)).WithError(err).Warn("❌ 推送批次发送失败")
				return nil
			}
			for _, r := range batchResults {
				if !r.Success {
					result.PartialBatches++
					break
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range result.Results {
		if r.Success {
			result.SuccessCount++
		} else {
			result.FailureCount++
		}
	}
	result.Duration = s.now().Sub(start)
	return result
}

func (s *Service) sendBatch(ctx context.Context, msg *Message, batch []string) ([]TokenResult, error) {
	results := make([]TokenResult, len(batch))
	for i, token := range batch {
		results[i] = TokenResult{Token: token}
	}

	response, err := s.client.Send(ctx, s.buildRequest(msg, batch))
	if err != nil {
		if !IsTransportError(err) {
			err = &TransportError{Err: err}
		}
		for i := range results {
			results[i].Error = err
		}
		return results, err
	}

	for i := range results {
		if i >= len(response.Responses) {
			results[i].ErrorCode = errorCodeMissingResponse
			results[i].Error = errors.New("gateway returned no result for token")
			continue
		}
		r := response.Responses[i]
		results[i].Success = r.Success
		results[i].MessageID = r.MessageID
		if !r.Success {
			results[i].ErrorCode = r.ErrorCode
			results[i].Error = fmt.Errorf("push rejected: %s", r.ErrorCode)
		}
	}
	return results, nil
}

func (s *Service) buildRequest(msg *Message, batch []string) *MulticastRequest {
	priority := msg.Priority
	if priority == "" {
		priority = "normal"
	}
	ios := &IOSOverride{Priority: priority}
	if msg.TTL > 0 {
		ios.Expiration = s.now().Add(msg.TTL).Unix()
	}
	return &MulticastRequest{
		Tokens:       batch,
		Notification: Notification{Title: msg.Title, Body: msg.Body},
		Data:         msg.Data,
		PlatformOverrides: PlatformOverrides{
			Android: &AndroidOverride{
				Priority:  priority,
				ChannelID: msg.AndroidChannel,
				Sound:     msg.Sound,
			},
			IOS: ios,
		},
	}
}
