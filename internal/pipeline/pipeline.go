// Package pipeline wires the Authenticator, Rate Limiter, Model-ID Resolver, Request/Response/
// Stream Translators, Backend Invoker, and Usage Recorder into the two request-handling
// operations the ambient HTTP layer calls (§4.9).
package pipeline

import (
	"context"
	"time"

	"anthrogate/internal/auth"
	"anthrogate/internal/domain"
	"anthrogate/internal/invoke"
	"anthrogate/internal/ratelimit"
	"anthrogate/internal/translate"
	"anthrogate/internal/usage"
)

// Pipeline is the single entry point the ambient HTTP layer calls per inbound request. It is
// deliberately HTTP-agnostic: no *http.Request/ResponseWriter crosses this boundary.
type Pipeline struct {
	auth     *auth.Authenticator
	limits   *ratelimit.Limiter
	resolver translate.Resolver
	invoker  *invoke.Invoker
	recorder *usage.Recorder
}

func New(authn *auth.Authenticator, limits *ratelimit.Limiter, resolver translate.Resolver, invoker *invoke.Invoker, recorder *usage.Recorder) *Pipeline {
	return &Pipeline{auth: authn, limits: limits, resolver: resolver, invoker: invoker, recorder: recorder}
}

// authorize runs the Authenticator and Rate Limiter stages shared by both Handle and
// HandleStream (§4.9 steps 1-2). A nil *domain.KeyContext return always pairs with a non-nil
// error.
func (p *Pipeline) authorize(ctx context.Context, rawKey string) (*domain.KeyContext, error) {
	kc, err := p.auth.Authenticate(ctx, rawKey)
	if err != nil {
		return nil, err
	}

	if kc.IsAdmin || p.limits == nil {
		return kc, nil
	}

	capacity := 0
	if kc.RateLimit != nil {
		capacity = *kc.RateLimit
	}
	limitKey := kc.Key
	if limitKey == "" {
		limitKey = "anonymous"
	}
	decision := p.limits.Consume(limitKey, 1, capacity)
	if !decision.Allowed {
		return nil, domain.NewError(domain.ErrRateLimit, "rate limit exceeded", nil)
	}

	return kc, nil
}

// Handle implements the unary path: authenticate, rate limit, resolve the model, translate the
// request, invoke the backend, translate the response, and record usage (§4.9).
func (p *Pipeline) Handle(ctx context.Context, rawKey string, req *domain.MessageRequest) (*domain.MessageResponse, error) {
	start := time.Now()
	kc, err := p.authorize(ctx, rawKey)
	if err != nil {
		return nil, err
	}
	if kc.ServiceTier != "" && req.ServiceTier == "" {
		req.ServiceTier = string(kc.ServiceTier)
	}

	converseReq, _, err := translate.BuildConverseRequest(p.resolver, req)
	if err != nil {
		return nil, err
	}
	converseReq.ServiceTier = req.ServiceTier

	record := domain.UsageRecord{APIKey: kc.Key, Timestamp: start, Model: req.Model}

	resp, err := p.invoker.Invoke(ctx, converseReq)
	if err != nil {
		record.Success = false
		record.ErrorMessage = err.Error()
		p.recorder.Record(record)
		return nil, err
	}

	msgResp, err := translate.BuildMessageResponse(resp, req.Model)
	if err != nil {
		record.Success = false
		record.ErrorMessage = err.Error()
		p.recorder.Record(record)
		return nil, err
	}

	record.Success = true
	record.InputTokens = msgResp.Usage.InputTokens
	record.OutputTokens = msgResp.Usage.OutputTokens
	record.CacheReadTokens = msgResp.Usage.CacheReadInputTokens
	record.CacheWriteTokens = msgResp.Usage.CacheCreationInputTokens
	p.recorder.Record(record)

	return msgResp, nil
}

// HandleStream implements the streaming path: the same authenticate/rate-limit/resolve/translate
// steps, then hands the backend frame channel through a StreamTranslator, emitting Anthropic SSE
// events on the returned channel. The channel is closed once the backend stream ends; usage is
// recorded from the final accumulated totals the StreamTranslator's Finalize event carries.
func (p *Pipeline) HandleStream(ctx context.Context, rawKey string, req *domain.MessageRequest) (<-chan domain.SSEEvent, error) {
	start := time.Now()
	kc, err := p.authorize(ctx, rawKey)
	if err != nil {
		return nil, err
	}
	if kc.ServiceTier != "" && req.ServiceTier == "" {
		req.ServiceTier = string(kc.ServiceTier)
	}

	converseReq, _, err := translate.BuildConverseRequest(p.resolver, req)
	if err != nil {
		return nil, err
	}
	converseReq.ServiceTier = req.ServiceTier

	frames, err := p.invoker.InvokeStream(ctx, converseReq)
	if err != nil {
		return nil, err
	}

	out := make(chan domain.SSEEvent, 16)
	go func() {
		defer close(out)

		st := translate.NewStreamTranslator(req.Model)
		record := domain.UsageRecord{APIKey: kc.Key, Timestamp: start, Model: req.Model}

		for frame := range frames {
			for _, ev := range st.Feed(frame) {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
			if frame.Type == domain.FrameMetadata {
				record.InputTokens = frame.Usage.InputTokens
				record.OutputTokens = frame.Usage.OutputTokens
				record.CacheReadTokens = frame.Usage.CacheReadInputTokens
				record.CacheWriteTokens = frame.Usage.CacheWriteInputTokens
				record.Success = true
			}
			if frame.Type == domain.FrameException {
				record.Success = false
				record.ErrorMessage = frame.ExceptionMessage
			}
		}

		for _, ev := range st.Finalize() {
			select {
			case out <- ev:
			case <-ctx.Done():
			}
		}

		p.recorder.Record(record)
	}()

	return out, nil
}
