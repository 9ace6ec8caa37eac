package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strconv"
	"time"

	"github.com/esignworks/signflow/internal/models"
)

type createEnvelopeResponse struct {
	EnvelopeID string `json:"envelopeId"`
}

// CreateEnvelope POSTs the envelope and its documents as a multipart request
// and returns the created envelope ID, which is also set on the envelope.
func (c *SignClient) CreateEnvelope(ctx context.Context, envelope *models.Envelope) (string, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return "", err
	}
	contentType, body, err := envelopeMultipartBody(envelope, true)
	if err != nil {
		return "", err
	}
	return c.postEnvelope(ctx, "createEnvelope", account, contentType, body, envelope)
}

// CreateEnvelopeFromTemplate POSTs a template-based envelope (JSON part
// only, no documents) and returns the created envelope ID.
func (c *SignClient) CreateEnvelopeFromTemplate(ctx context.Context, envelope *models.Envelope) (string, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return "", err
	}
	contentType, body, err := envelopeMultipartBody(envelope, false)
	if err != nil {
		return "", err
	}
	return c.postEnvelope(ctx, "createEnvelopeFromTemplate", account, contentType, body, envelope)
}

func (c *SignClient) postEnvelope(ctx context.Context, operation, account, contentType string, body []byte, envelope *models.Envelope) (string, error) {
	respBody, err := c.do(ctx, operation, http.MethodPost, account+"/envelopes", requestOpts{
		rawBody:      body,
		contentType:  contentType,
		expectStatus: http.StatusCreated,
		sobo:         envelope.SOBOEmail,
	})
	if err != nil {
		return "", err
	}
	var resp createEnvelopeResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return "", fmt.Errorf("parse create envelope response: %w", err)
	}
	if envelope.EnvelopeID == "" {
		envelope.EnvelopeID = resp.EnvelopeID
	}
	return resp.EnvelopeID, nil
}

// envelopeMultipartBody renders the multipart/form-data body for envelope
// creation: a JSON part describing the envelope, then one part per document
// when includeDocuments is set. Document readers are consumed.
func envelopeMultipartBody(envelope *models.Envelope, includeDocuments bool) (contentType string, body []byte, err error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	jsonHeader := textproto.MIMEHeader{}
	jsonHeader.Set("Content-Type", "application/json; charset=UTF-8")
	jsonHeader.Set("Content-Disposition", "form-data")
	part, err := w.CreatePart(jsonHeader)
	if err != nil {
		return "", nil, fmt.Errorf("create json part: %w", err)
	}
	raw, err := json.Marshal(envelope)
	if err != nil {
		return "", nil, fmt.Errorf("marshal envelope: %w", err)
	}
	if _, err := part.Write(raw); err != nil {
		return "", nil, fmt.Errorf("write json part: %w", err)
	}

	if includeDocuments {
		for _, doc := range envelope.Documents {
			if doc.Data == nil {
				return "", nil, fmt.Errorf("document %d (%s) has no data", doc.DocumentID, doc.Name)
			}
			docHeader := textproto.MIMEHeader{}
			docHeader.Set("Content-Type", "application/pdf")
			docHeader.Set("Content-Disposition",
				fmt.Sprintf(`file; filename=%q; documentId=%d`, doc.Name, doc.DocumentID))
			part, err := w.CreatePart(docHeader)
			if err != nil {
				return "", nil, fmt.Errorf("create document part: %w", err)
			}
			if _, err := io.Copy(part, doc.Data); err != nil {
				return "", nil, fmt.Errorf("write document %s: %w", doc.Name, err)
			}
		}
	}

	if err := w.Close(); err != nil {
		return "", nil, fmt.Errorf("close multipart body: %w", err)
	}
	return w.FormDataContentType(), buf.Bytes(), nil
}

// Envelope returns the raw envelope resource.
func (c *SignClient) Envelope(ctx context.Context, envelopeID string) (json.RawMessage, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "getEnvelope", http.MethodGet, account+"/envelopes/"+envelopeID+"/", requestOpts{})
}

// SendEnvelope transitions a draft envelope to sent.
func (c *SignClient) SendEnvelope(ctx context.Context, envelopeID string) error {
	account, err := c.accountPath(ctx)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, "sendEnvelope", http.MethodPut, account+"/envelopes/"+envelopeID+"/", requestOpts{
		body: map[string]string{"status": models.EnvelopeStatusSent},
	})
	return err
}

// VoidEnvelope voids the envelope with the given reason.
func (c *SignClient) VoidEnvelope(ctx context.Context, envelopeID, reason string) error {
	account, err := c.accountPath(ctx)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, "voidEnvelope", http.MethodPut, account+"/envelopes/"+envelopeID+"/", requestOpts{
		body: map[string]string{
			"status":      models.EnvelopeStatusVoided,
			"voidedReason": reason,
		},
	})
	return err
}

// DeleteEnvelopes moves the envelopes to the recycle-bin folder.
func (c *SignClient) DeleteEnvelopes(ctx context.Context, envelopeIDs ...string) error {
	account, err := c.accountPath(ctx)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, "deleteEnvelopes", http.MethodPut, account+"/folders/recyclebin/", requestOpts{
		body: map[string][]string{"envelopeIds": envelopeIDs},
	})
	return err
}

// SearchOptions filters an envelope search. A zero FromDate searches from
// the beginning of time, matching historical client behavior.
type SearchOptions struct {
	FromDate         time.Time
	Status           string
	CustomField      string
	CustomFieldValue string
}

// SearchEnvelopes lists envelopes matching opts.
func (c *SignClient) SearchEnvelopes(ctx context.Context, opts SearchOptions) (json.RawMessage, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	fromDate := "1/1/1900"
	if !opts.FromDate.IsZero() {
		fromDate = opts.FromDate.Format("1/2/2006")
	}
	params := url.Values{}
	params.Set("from_date", fromDate)
	if opts.CustomField != "" && opts.CustomFieldValue != "" {
		params.Set("custom_field", opts.CustomField+"="+opts.CustomFieldValue)
	}
	if opts.Status != "" {
		params.Set("status", opts.Status)
	}
	return c.do(ctx, "searchEnvelopes", http.MethodGet, account+"/envelopes/?"+params.Encode(), requestOpts{})
}

// EnvelopeNotification returns the envelope's event notification settings.
func (c *SignClient) EnvelopeNotification(ctx context.Context, envelopeID string) (json.RawMessage, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "getEnvelopeNotification", http.MethodGet,
		account+"/envelopes/"+envelopeID+"/notification/", requestOpts{})
}

// customFieldsPayload shapes custom field create/update requests.
type customFieldsPayload struct {
	TextCustomFields []models.TextCustomField `json:"textCustomFields"`
	ListCustomFields []models.ListCustomField `json:"listCustomFields"`
}

// EnvelopeCustomFields returns the envelope's custom fields.
func (c *SignClient) EnvelopeCustomFields(ctx context.Context, envelopeID string) (json.RawMessage, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "getEnvelopeCustomFields", http.MethodGet,
		account+"/envelopes/"+envelopeID+"/custom_fields/", requestOpts{})
}

// CreateEnvelopeCustomFields adds custom fields to the envelope.
func (c *SignClient) CreateEnvelopeCustomFields(ctx context.Context, envelopeID string,
	text []models.TextCustomField, list []models.ListCustomField) (json.RawMessage, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "createEnvelopeCustomFields", http.MethodPost,
		account+"/envelopes/"+envelopeID+"/custom_fields/", requestOpts{
			body:         customFieldsPayload{TextCustomFields: text, ListCustomFields: list},
			expectStatus: http.StatusCreated,
		})
}

// UpdateEnvelopeCustomFields updates existing custom fields on the envelope.
func (c *SignClient) UpdateEnvelopeCustomFields(ctx context.Context, envelopeID string,
	text []models.TextCustomField, list []models.ListCustomField) (json.RawMessage, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, "updateEnvelopeCustomFields", http.MethodPut,
		account+"/envelopes/"+envelopeID+"/custom_fields/", requestOpts{
			body:         customFieldsPayload{TextCustomFields: text, ListCustomFields: list},
			expectStatus: http.StatusCreated,
		})
}

// EnvelopeRecipients returns the envelope's recipients as reported by DocuSign.
func (c *SignClient) EnvelopeRecipients(ctx context.Context, envelopeID string) (models.RecipientsResponse, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return models.RecipientsResponse{}, err
	}
	body, err := c.do(ctx, "getEnvelopeRecipients", http.MethodGet,
		account+"/envelopes/"+envelopeID+"/recipients", requestOpts{})
	if err != nil {
		return models.RecipientsResponse{}, err
	}
	var resp models.RecipientsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return models.RecipientsResponse{}, fmt.Errorf("parse recipients: %w", err)
	}
	return resp, nil
}

// UpdateEnvelopeRecipients PUTs a recipients update with optional query
// params (e.g. resend_envelope=true).
func (c *SignClient) UpdateEnvelopeRecipients(ctx context.Context, envelopeID string,
	recipients interface{}, params url.Values) (json.RawMessage, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	path := account + "/envelopes/" + envelopeID + "/recipients/"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	return c.do(ctx, "updateEnvelopeRecipients", http.MethodPut, path, requestOpts{body: recipients})
}

// RecipientViewRequest identifies the recipient to start embedded signing for.
type RecipientViewRequest struct {
	EnvelopeID           string
	AuthenticationMethod string // defaults to "none"
	ClientUserID         string
	Email                string
	UserName             string
	UserID               string
	ReturnURL            string
}

// RecipientView POSTs .../views/recipient and returns the one-time embedded
// signing URL for the recipient.
func (c *SignClient) RecipientView(ctx context.Context, req RecipientViewRequest) (string, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return "", err
	}
	if req.AuthenticationMethod == "" {
		req.AuthenticationMethod = "none"
	}
	body, err := c.do(ctx, "recipientView", http.MethodPost,
		account+"/envelopes/"+req.EnvelopeID+"/views/recipient", requestOpts{
			body: map[string]string{
				"authenticationMethod": req.AuthenticationMethod,
				"clientUserId":         req.ClientUserID,
				"email":                req.Email,
				"envelopeId":           req.EnvelopeID,
				"returnUrl":            req.ReturnURL,
				"userId":               req.UserID,
				"userName":             req.UserName,
			},
			expectStatus: http.StatusCreated,
		})
	if err != nil {
		return "", err
	}
	var resp struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("parse recipient view response: %w", err)
	}
	return resp.URL, nil
}

// AuditEvents returns the envelope's audit trail flattened into one
// name→value map per event.
func (c *SignClient) AuditEvents(ctx context.Context, envelopeID string) ([]map[string]string, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, "getAuditEvents", http.MethodGet,
		account+"/envelopes/"+envelopeID+"/audit_events", requestOpts{})
	if err != nil {
		return nil, err
	}
	var resp struct {
		AuditEvents []struct {
			EventFields []struct {
				Name  string `json:"name"`
				Value string `json:"value"`
			} `json:"eventFields"`
		} `json:"auditEvents"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse audit events: %w", err)
	}
	events := make([]map[string]string, 0, len(resp.AuditEvents))
	for _, audit := range resp.AuditEvents {
		event := make(map[string]string, len(audit.EventFields))
		for _, f := range audit.EventFields {
			event[f.Name] = f.Value
		}
		events = append(events, event)
	}
	return events, nil
}

// documentRef names one document in a delete request.
type documentRef struct {
	DocumentID string `json:"documentId"`
}

func documentRefs(ids []int) []documentRef {
	refs := make([]documentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, documentRef{DocumentID: strconv.Itoa(id)})
	}
	return refs
}
