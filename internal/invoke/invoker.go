// Package invoke implements the Backend Invoker: Bedrock Converse/ConverseStream calls plus the
// at-most-once service-tier fallback of §4.5.
package invoke

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"anthrogate/internal/domain"
	"anthrogate/internal/resilience"
)

// Client is the subset of bedrockruntime.Client the invoker calls, narrowed to an interface so
// tests can substitute a mock backend without a live AWS account.
type Client interface {
	Converse(ctx context.Context, req *domain.ConverseRequest) (*domain.ConverseResponse, error)
	ConverseStream(ctx context.Context, req *domain.ConverseRequest) (<-chan domain.BedrockFrame, error)
}

// Invoker wraps a single shared Client and applies the service-tier fallback state machine.
type Invoker struct {
	client         Client
	defaultTimeout time.Duration
}

func New(client Client, defaultTimeout time.Duration) *Invoker {
	if defaultTimeout <= 0 {
		defaultTimeout = 300 * time.Second
	}
	return &Invoker{client: client, defaultTimeout: defaultTimeout}
}

// Invoke implements the unary path of §4.5: call Converse, and on a ValidationException
// mentioning "service tier", retry exactly once with tier=default.
func (inv *Invoker) Invoke(ctx context.Context, req *domain.ConverseRequest) (*domain.ConverseResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, inv.defaultTimeout)
	defer cancel()

	resp, err := inv.client.Converse(ctx, req)
	if err == nil {
		return resp, nil
	}
	if req.ServiceTier == "" || !resilience.IsServiceTierRejection(err) {
		return nil, classifyBackendError(err)
	}

	slog.Warn("service tier rejected, retrying with default tier",
		"requested_tier", req.ServiceTier, "model", req.ModelID, "error", err)
	fallback := *req
	fallback.ServiceTier = string(domain.ServiceTierDefault)
	resp, err = inv.client.Converse(ctx, &fallback)
	if err != nil {
		return nil, classifyBackendError(err)
	}
	return resp, nil
}

// InvokeStream implements the streaming path of §4.5. The returned channel is closed when the
// backend stream ends or ctx is canceled; on the one-shot service-tier fallback, a second
// ConverseStream call is made before any frame reaches the caller (the first attempt must fail at
// call time, not mid-stream, for the fallback to apply — matching the unary semantics).
func (inv *Invoker) InvokeStream(ctx context.Context, req *domain.ConverseRequest) (<-chan domain.BedrockFrame, error) {
	frames, err := inv.client.ConverseStream(ctx, req)
	if err == nil {
		return frames, nil
	}
	if req.ServiceTier == "" || !resilience.IsServiceTierRejection(err) {
		return nil, classifyBackendError(err)
	}

	slog.Warn("service tier rejected, retrying stream with default tier",
		"requested_tier", req.ServiceTier, "model", req.ModelID, "error", err)
	fallback := *req
	fallback.ServiceTier = string(domain.ServiceTierDefault)
	frames, err = inv.client.ConverseStream(ctx, &fallback)
	if err != nil {
		return nil, classifyBackendError(err)
	}
	return frames, nil
}

// classifyBackendError maps a raw Bedrock SDK error into the taxonomy of §7; the invoker is the
// edge that must classify every error it cannot itself recover from.
func classifyBackendError(err error) error {
	msg := err.Error()
	switch {
	case containsAny(msg, "ThrottlingException", "TooManyRequestsException"):
		return domain.NewError(domain.ErrOverloaded, "backend is throttling requests", err)
	case containsAny(msg, "ValidationException"):
		return domain.NewError(domain.ErrInvalidRequest, "backend rejected the request", err)
	case containsAny(msg, "ResourceNotFoundException"):
		return domain.NewError(domain.ErrNotFound, "model not found", err)
	case containsAny(msg, "AccessDeniedException"):
		return domain.NewError(domain.ErrAuthentication, "backend denied access", err)
	case containsAny(msg, "InternalServerException", "ModelStreamErrorException"):
		return domain.NewError(domain.ErrAPI, "backend internal error", err)
	default:
		return domain.NewError(domain.ErrAPI, "backend call failed", err)
	}
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// NewIAMClient builds a Client backed by a shared bedrockruntime.Client authenticated via static
// IAM credentials, matching the teacher's NewBedrockClient IAM-first construction path
// (internal/provider/bedrock.go: awsconfig.LoadDefaultConfig + NewStaticCredentialsProvider).
func NewIAMClient(ctx context.Context, region, accessKey, secretKey string) (*SDKClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}
	return &SDKClient{rt: bedrockruntime.NewFromConfig(awsCfg)}, nil
}
