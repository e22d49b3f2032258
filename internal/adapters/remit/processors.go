package remit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/meridian-rcm/platform/internal/agenttask"
)

// The processors below adapt the external service contracts onto the
// task stage machine: Parse normalizes the caller's input, Reason
// performs the remote call, Decide shapes the final outcome.

// EligibilityProcessor drives an eligibility task
type EligibilityProcessor struct {
	verifier EligibilityVerifier
}

// NewEligibilityProcessor creates an eligibility task processor
func NewEligibilityProcessor(verifier EligibilityVerifier) *EligibilityProcessor {
	return &EligibilityProcessor{verifier: verifier}
}

func (p *EligibilityProcessor) Parse(ctx context.Context, input any) (any, error) {
	var req EligibilityRequest
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if req.MemberID == "" {
		return nil, fmt.Errorf("member ID is required")
	}
	if req.PayerCode == "" {
		return nil, fmt.Errorf("payer code is required")
	}
	return req, nil
}

func (p *EligibilityProcessor) Reason(ctx context.Context, parsed any) (any, error) {
	req := parsed.(EligibilityRequest)
	result, confidence, err := p.verifier.Verify(ctx, req)
	if err != nil {
		return nil, err
	}
	return stageResult{payload: result, confidence: confidence}, nil
}

func (p *EligibilityProcessor) Decide(ctx context.Context, analysis any) (agenttask.Outcome, error) {
	return decideFrom(analysis)
}

// SummarizationProcessor drives a clinical summarization task
type SummarizationProcessor struct {
	summarizer ClinicalSummarizer
}

// NewSummarizationProcessor creates a summarization task processor
func NewSummarizationProcessor(summarizer ClinicalSummarizer) *SummarizationProcessor {
	return &SummarizationProcessor{summarizer: summarizer}
}

func (p *SummarizationProcessor) Parse(ctx context.Context, input any) (any, error) {
	var req SummaryRequest
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if req.PatientRef == "" {
		return nil, fmt.Errorf("patient reference is required")
	}
	return req, nil
}

func (p *SummarizationProcessor) Reason(ctx context.Context, parsed any) (any, error) {
	req := parsed.(SummaryRequest)
	summary, confidence, err := p.summarizer.Summarize(ctx, req)
	if err != nil {
		return nil, err
	}
	return stageResult{payload: summary, confidence: confidence}, nil
}

func (p *SummarizationProcessor) Decide(ctx context.Context, analysis any) (agenttask.Outcome, error) {
	return decideFrom(analysis)
}

// CodingProcessor drives a coding suggestion task
type CodingProcessor struct {
	coder CodingService
}

// NewCodingProcessor creates a coding task processor
func NewCodingProcessor(coder CodingService) *CodingProcessor {
	return &CodingProcessor{coder: coder}
}

func (p *CodingProcessor) Parse(ctx context.Context, input any) (any, error) {
	var req CodingRequest
	if err := decodeInput(input, &req); err != nil {
		return nil, err
	}
	if req.ProcedureCategory == "" {
		return nil, fmt.Errorf("procedure category is required")
	}
	return req, nil
}

func (p *CodingProcessor) Reason(ctx context.Context, parsed any) (any, error) {
	req := parsed.(CodingRequest)
	result, confidence, err := p.coder.SuggestCodes(ctx, req)
	if err != nil {
		return nil, err
	}
	if result.ProcedureCode == "" {
		return nil, fmt.Errorf("coding service returned no procedure code")
	}
	return stageResult{payload: result, confidence: confidence}, nil
}

func (p *CodingProcessor) Decide(ctx context.Context, analysis any) (agenttask.Outcome, error) {
	return decideFrom(analysis)
}

type stageResult struct {
	payload    any
	confidence float64
}

func decideFrom(analysis any) (agenttask.Outcome, error) {
	r, ok := analysis.(stageResult)
	if !ok {
		return agenttask.Outcome{}, fmt.Errorf("unexpected analysis type %T", analysis)
	}
	return agenttask.Outcome{Payload: r.payload, Confidence: r.confidence}, nil
}

// decodeInput accepts either the typed request or its JSON shape
func decodeInput(input, target any) error {
	raw, err := json.Marshal(input)
	if err != nil {
		return fmt.Errorf("invalid task input: %w", err)
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("invalid task input: %w", err)
	}
	return nil
}

// Interface checks
var (
	_ agenttask.Processor = (*EligibilityProcessor)(nil)
	_ agenttask.Processor = (*SummarizationProcessor)(nil)
	_ agenttask.Processor = (*CodingProcessor)(nil)
)
