package handler

import (
	"ronflow/internal/document/models"
	"ronflow/internal/document/service"
)

// CreateFromTemplateRequest creates a workflow-branch document.
type CreateFromTemplateRequest struct {
	TemplateID  string            `json:"template_id"`
	Title       string            `json:"title"`
	ClientID    string            `json:"client_id"`
	CertifierID string            `json:"certifier_id"`
	Variables   map[string]string `json:"variables"`
}

// UploadRequest registers an externally produced document.
type UploadRequest struct {
	Title       string `json:"title"`
	Body        string `json:"body"`
	ClientID    string `json:"client_id"`
	CertifierID string `json:"certifier_id"`
}

// ReplaceContentRequest swaps the body of a preview document.
type ReplaceContentRequest struct {
	Body string `json:"body"`
}

// DecisionRequest carries certify/reject notes.
type DecisionRequest struct {
	Notes  string `json:"notes,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// BatchRequest applies one action across many documents.
type BatchRequest struct {
	Action      string   `json:"action"`
	DocumentIDs []string `json:"document_ids"`
	Reason      string   `json:"reason,omitempty"`
}

// SubmitSignatureRequest redeems a signature token.
type SubmitSignatureRequest struct {
	Token     string `json:"token"`
	ImageData string `json:"image_data"`
}

// CreateTemplateRequest registers a template.
type CreateTemplateRequest struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// CreatedDocumentResponse pairs a new workflow document with the signing
// tokens issued for its parties.
type CreatedDocumentResponse struct {
	Document *models.Document             `json:"document"`
	Tokens   []service.IssuedSigningToken `json:"tokens,omitempty"`
}
