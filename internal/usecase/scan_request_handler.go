package usecase

import (
	"context"
	"encoding/json"
	"fmt"

	"SignalScope/internal/domain/models"
	pkgkafka "SignalScope/pkg/kafka"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// ScanRequestHandler consumes scan requests from Kafka and runs them
// through the scanner. Reports reach clients through the scanner's
// publisher and listener.
type ScanRequestHandler struct {
	topic    string
	scanner  *Scanner
	validate *validator.Validate
}

func NewScanRequestHandler(topic string, scanner *Scanner) *ScanRequestHandler {
	return &ScanRequestHandler{topic: topic, scanner: scanner, validate: validator.New()}
}

func (h *ScanRequestHandler) Topic() string { return h.topic }

// Handle decodes one ScanRequest. Bad payloads are permanent failures and
// skip the consumer's retries.
func (h *ScanRequestHandler) Handle(ctx context.Context, b []byte) error {
	var req models.ScanRequest
	if err := json.Unmarshal(b, &req); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("decode scan request: %w", err))
	}
	if err := defaults.Set(&req); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("scan request defaults: %w", err))
	}
	if err := h.validate.Struct(&req); err != nil {
		return pkgkafka.Permanent(fmt.Errorf("invalid scan request: %w", err))
	}

	if _, err := h.scanner.Scan(ctx, req); err != nil {
		if IsClientError(err) {
			return pkgkafka.Permanent(err)
		}
		return err
	}
	return nil
}
