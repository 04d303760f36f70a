package transfer

import (
	"context"
	"errors"
	"testing"
)

type stubSender struct {
	sendErr   error
	requests  []*ChunkRequest
	finalized []string
	discarded []string
}

func (s *stubSender) Send(ctx context.Context, req *ChunkRequest) error {
	if s.sendErr != nil {
		return s.sendErr
	}
	s.requests = append(s.requests, req)
	return nil
}

func (s *stubSender) Finalize(ctx context.Context, fileName string) error {
	s.finalized = append(s.finalized, fileName)
	return nil
}

func (s *stubSender) Discard(ctx context.Context, fileName string) error {
	s.discarded = append(s.discarded, fileName)
	return nil
}

func TestMultiSenderReplicates(t *testing.T) {
	primary := &stubSender{}
	replica := &stubSender{}

	multi := NewMultiSender(primary, replica)
	ctx := context.Background()

	req := &ChunkRequest{FileName: "r.bin", FileSize: 4, ChunkIndex: 0, TotalChunks: 1, Bytes: []byte("data")}
	if err := multi.Send(ctx, req); err != nil {
		t.Fatalf("Send returned error: %v", err)
	}

	if len(primary.requests) != 1 || len(replica.requests) != 1 {
		t.Fatalf("chunk not replicated: primary=%d replica=%d", len(primary.requests), len(replica.requests))
	}

	if err := multi.Finalize(ctx, "r.bin"); err != nil {
		t.Fatalf("Finalize returned error: %v", err)
	}

	if len(primary.finalized) != 1 || len(replica.finalized) != 1 {
		t.Fatal("finalize not propagated to every backend")
	}
}

func TestMultiSenderReplicaFailureFailsChunk(t *testing.T) {
	primary := &stubSender{}
	replica := &stubSender{sendErr: errors.New("replica down")}

	multi := NewMultiSender(primary, replica)

	req := &ChunkRequest{FileName: "r.bin", FileSize: 1, ChunkIndex: 0, TotalChunks: 1, Bytes: []byte("x")}
	if err := multi.Send(context.Background(), req); err == nil {
		t.Fatal("expected error when replica rejects the chunk")
	}
}

func TestMultiSenderPrimaryFailureSkipsReplicas(t *testing.T) {
	primary := &stubSender{sendErr: errors.New("primary down")}
	replica := &stubSender{}

	multi := NewMultiSender(primary, replica)

	req := &ChunkRequest{FileName: "r.bin", FileSize: 1, ChunkIndex: 0, TotalChunks: 1, Bytes: []byte("x")}
	if err := multi.Send(context.Background(), req); err == nil {
		t.Fatal("expected primary error")
	}

	if len(replica.requests) != 0 {
		t.Fatal("replica received a chunk the primary rejected")
	}
}

func TestMultiSenderDiscardBestEffort(t *testing.T) {
	primary := &stubSender{}
	replica := &stubSender{}

	multi := NewMultiSender(primary, replica)
	if err := multi.Discard(context.Background(), "r.bin"); err != nil {
		t.Fatalf("Discard returned error: %v", err)
	}

	if len(primary.discarded) != 1 || len(replica.discarded) != 1 {
		t.Fatal("discard not propagated to every backend")
	}
}

func TestMultiSenderValidate(t *testing.T) {
	if err := NewMultiSender(&stubSender{}, &stubSender{}).Validate(context.Background()); err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}

	if err := NewMultiSender(nil).Validate(context.Background()); err == nil {
		t.Fatal("expected error for missing primary")
	}
}
