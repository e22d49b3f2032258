package remit

import (
	"context"
)

// Adapters normalize external revenue-cycle services into a
// (payload, confidence, error) contract. A failed call returns a
// typed error; adapters never substitute canned data for a failure,
// so confidence values and audit trails stay honest.

// EligibilityVerifier checks member coverage with the clearinghouse
type EligibilityVerifier interface {
	Verify(ctx context.Context, req EligibilityRequest) (EligibilityResult, float64, error)
}

// ClinicalSummarizer condenses chart notes into severity signals
type ClinicalSummarizer interface {
	Summarize(ctx context.Context, req SummaryRequest) (ClinicalSummary, float64, error)
}

// CodingService suggests procedure codes from clinical context
type CodingService interface {
	SuggestCodes(ctx context.Context, req CodingRequest) (CodingResult, float64, error)
}

// RemittanceHandler consumes posted remittance lines
type RemittanceHandler func(remittance PostedRemittance)

// RemittanceSource streams posted payments from the payer feed
type RemittanceSource interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Health(ctx context.Context) error
	SubscribeRemittances(ctx context.Context, handler RemittanceHandler) error
}
