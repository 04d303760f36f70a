package transfer

import (
	"context"
	"fmt"
)

var (
	_ ChunkSender     = &MultiSender{}
	_ SenderFinalizer = &MultiSender{}
	_ SenderValidator = &MultiSender{}
)

// MultiSender replicates every chunk to a primary sender and a set of
// replicas. The primary's outcome decides the chunk; a replica failure fails
// the chunk too, since the point of replication is that both copies exist.
type MultiSender struct {
	logger   Logger
	primary  ChunkSender
	replicas []ChunkSender
}

func NewMultiSender(primary ChunkSender, replicas ...ChunkSender) *MultiSender {
	return &MultiSender{
		logger:   &DefaultLogger{},
		primary:  primary,
		replicas: replicas,
	}
}

func (m *MultiSender) WithLogger(l Logger) *MultiSender {
	m.logger = l
	return m
}

func (m *MultiSender) Send(ctx context.Context, req *ChunkRequest) error {
	if err := m.primary.Send(ctx, req); err != nil {
		return err
	}

	for i, replica := range m.replicas {
		if err := replica.Send(ctx, req); err != nil {
			return fmt.Errorf("multi sender: replica %d: %w", i, err)
		}
	}

	return nil
}

func (m *MultiSender) Finalize(ctx context.Context, fileName string) error {
	if err := finalizeOptional(ctx, m.primary, fileName); err != nil {
		return err
	}

	for i, replica := range m.replicas {
		if err := finalizeOptional(ctx, replica, fileName); err != nil {
			return fmt.Errorf("multi sender: replica %d finalize: %w", i, err)
		}
	}

	return nil
}

func (m *MultiSender) Discard(ctx context.Context, fileName string) error {
	// best effort on every backend, first error wins
	var first error
	for _, sender := range append([]ChunkSender{m.primary}, m.replicas...) {
		if err := discardOptional(ctx, sender, fileName); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m *MultiSender) Validate(ctx context.Context) error {
	if m.primary == nil {
		return fmt.Errorf("multi sender: primary not configured")
	}

	if err := validateOptional(ctx, m.primary); err != nil {
		return fmt.Errorf("multi sender: primary validation failed: %w", err)
	}

	for i, replica := range m.replicas {
		if replica == nil {
			return fmt.Errorf("multi sender: replica %d not configured", i)
		}

		if err := validateOptional(ctx, replica); err != nil {
			return fmt.Errorf("multi sender: replica %d validation failed: %w", i, err)
		}
	}

	return nil
}

func finalizeOptional(ctx context.Context, sender ChunkSender, fileName string) error {
	finalizer, ok := sender.(SenderFinalizer)
	if !ok {
		return nil
	}
	return finalizer.Finalize(ctx, fileName)
}

func discardOptional(ctx context.Context, sender ChunkSender, fileName string) error {
	finalizer, ok := sender.(SenderFinalizer)
	if !ok {
		return nil
	}
	return finalizer.Discard(ctx, fileName)
}

func validateOptional(ctx context.Context, sender ChunkSender) error {
	validator, ok := sender.(SenderValidator)
	if !ok {
		return nil
	}
	return validator.Validate(ctx)
}
