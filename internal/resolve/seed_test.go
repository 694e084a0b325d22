package resolve

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrock"
	"github.com/aws/aws-sdk-go-v2/service/bedrock/types"
)

type fakeProfileLister struct {
	out *bedrock.ListInferenceProfilesOutput
	err error
}

func (f *fakeProfileLister) ListInferenceProfiles(_ context.Context, _ *bedrock.ListInferenceProfilesInput, _ ...func(*bedrock.Options)) (*bedrock.ListInferenceProfilesOutput, error) {
	return f.out, f.err
}

type fakeMappingWriter struct {
	written map[string]string
}

func newFakeMappingWriter() *fakeMappingWriter {
	return &fakeMappingWriter{written: make(map[string]string)}
}

func (f *fakeMappingWriter) PutModelMapping(_ context.Context, anthropicID, backendID string) error {
	f.written[anthropicID] = backendID
	return nil
}

func strPtr(s string) *string { return &s }

func TestSeedFromInferenceProfilesSkipsBuiltins(t *testing.T) {
	lister := &fakeProfileLister{out: &bedrock.ListInferenceProfilesOutput{
		InferenceProfileSummaries: []types.InferenceProfileSummary{
			{InferenceProfileId: strPtr("us.anthropic.claude-sonnet-4-5-20250929-v1:0")},
		},
	}}
	writer := newFakeMappingWriter()

	SeedFromInferenceProfiles(context.Background(), lister, writer)

	if len(writer.written) != 0 {
		t.Errorf("expected no writes for a profile already in the built-in table, got %v", writer.written)
	}
}

func TestSeedFromInferenceProfilesRegistersUnknownProfile(t *testing.T) {
	lister := &fakeProfileLister{out: &bedrock.ListInferenceProfilesOutput{
		InferenceProfileSummaries: []types.InferenceProfileSummary{
			{InferenceProfileId: strPtr("eu.anthropic.claude-new-model-20261201-v1:0")},
		},
	}}
	writer := newFakeMappingWriter()

	SeedFromInferenceProfiles(context.Background(), lister, writer)

	backendID, ok := writer.written["claude-new-model-20261201"]
	if !ok {
		t.Fatalf("expected alias claude-new-model-20261201 to be registered, got %v", writer.written)
	}
	if backendID != "eu.anthropic.claude-new-model-20261201-v1:0" {
		t.Errorf("unexpected backend id %q", backendID)
	}
}

func TestSeedFromInferenceProfilesSkipsOnListError(t *testing.T) {
	lister := &fakeProfileLister{err: errors.New("access denied")}
	writer := newFakeMappingWriter()

	SeedFromInferenceProfiles(context.Background(), lister, writer)

	if len(writer.written) != 0 {
		t.Errorf("expected no writes when ListInferenceProfiles fails, got %v", writer.written)
	}
}

func TestSeedFromInferenceProfilesSkipsNilProfileID(t *testing.T) {
	lister := &fakeProfileLister{out: &bedrock.ListInferenceProfilesOutput{
		InferenceProfileSummaries: []types.InferenceProfileSummary{{InferenceProfileId: nil}},
	}}
	writer := newFakeMappingWriter()

	SeedFromInferenceProfiles(context.Background(), lister, writer)

	if len(writer.written) != 0 {
		t.Errorf("expected no writes for a profile with a nil id, got %v", writer.written)
	}
}
