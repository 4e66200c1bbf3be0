package service

import (
	"context"

	"ronflow/internal/document/models"
	id "ronflow/pkg/domain"
	dErrors "ronflow/pkg/domain-errors"
)

// BatchAction is a bulk certifier decision.
type BatchAction string

const (
	BatchCertify   BatchAction = "certify"
	BatchReject    BatchAction = "reject"
	BatchReprocess BatchAction = "reprocess"
)

// BatchResult reports the outcome for one document in a batch.
type BatchResult struct {
	DocumentID id.DocumentID          `json:"document_id"`
	Status     models.DocumentStatus  `json:"status,omitempty"`
	Error      string                 `json:"error,omitempty"`
	ErrorCode  dErrors.Code           `json:"error_code,omitempty"`
}

// OK reports whether the item succeeded.
func (r BatchResult) OK() bool { return r.Error == "" }

// BatchApply runs one action across many documents. Items fail
// independently; one invalid document never aborts the rest.
func (s *Service) BatchApply(ctx context.Context, certifierID id.UserID, action BatchAction, docIDs []id.DocumentID, reason string) ([]BatchResult, error) {
	if len(docIDs) == 0 {
		return nil, dErrors.New(dErrors.CodeValidation, "batch requires at least one document")
	}

	results := make([]BatchResult, 0, len(docIDs))
	for _, docID := range docIDs {
		var (
			doc *models.Document
			err error
		)
		switch action {
		case BatchCertify:
			doc, err = s.Certify(ctx, docID, certifierID, reason)
		case BatchReject:
			doc, err = s.Reject(ctx, docID, certifierID, reason)
		case BatchReprocess:
			doc, err = s.StartProcessing(ctx, docID)
		default:
			err = dErrors.New(dErrors.CodeValidation, "unknown batch action: "+string(action))
		}

		result := BatchResult{DocumentID: docID}
		if err != nil {
			result.Error = err.Error()
			result.ErrorCode = dErrors.CodeOf(err)
		} else {
			result.Status = doc.Status
		}
		results = append(results, result)
	}
	return results, nil
}
