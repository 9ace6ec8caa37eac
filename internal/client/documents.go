package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/esignworks/signflow/internal/models"
	"github.com/esignworks/signflow/internal/observability"
)

// EnvelopeDocuments lists the documents in the envelope.
func (c *SignClient) EnvelopeDocuments(ctx context.Context, envelopeID string) ([]models.EnvelopeDocument, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	body, err := c.do(ctx, "listEnvelopeDocuments", http.MethodGet,
		account+"/envelopes/"+envelopeID+"/documents", requestOpts{})
	if err != nil {
		return nil, err
	}
	var resp struct {
		EnvelopeDocuments []models.EnvelopeDocument `json:"envelopeDocuments"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse document list: %w", err)
	}
	return resp.EnvelopeDocuments, nil
}

// EnvelopeDocument downloads one document from the envelope. The caller must
// close the returned reader. Downloads stream and bypass the retry loop.
func (c *SignClient) EnvelopeDocument(ctx context.Context, envelopeID, documentID string) (io.ReadCloser, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	return c.stream(ctx, "downloadDocument",
		account+"/envelopes/"+envelopeID+"/documents/"+documentID)
}

// CombinedDocuments downloads all envelope documents as a single PDF.
// watermark and certificate control the served variant. Caller closes.
func (c *SignClient) CombinedDocuments(ctx context.Context, envelopeID string, watermark, certificate bool) (io.ReadCloser, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	params := url.Values{}
	params.Set("watermark", strconv.FormatBool(watermark))
	params.Set("certificate", strconv.FormatBool(certificate))
	return c.stream(ctx, "downloadCombinedDocuments",
		account+"/envelopes/"+envelopeID+"/documents/combined/?"+params.Encode())
}

// stream performs a GET whose body is handed to the caller unconsumed.
func (c *SignClient) stream(ctx context.Context, operation, path string) (io.ReadCloser, error) {
	req, err := c.buildRequest(ctx, http.MethodGet, path, requestOpts{})
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		observability.RecordAPICall(operation, "error", 0)
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	observability.SignAPICallsTotal.WithLabelValues(operation, statusLabel(resp.StatusCode)).Inc()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, statusError(http.MethodGet, req.URL.String(), resp.StatusCode, http.StatusOK, body)
	}
	return resp.Body, nil
}

// UploadDocument PUTs file content as the given document of the envelope.
func (c *SignClient) UploadDocument(ctx context.Context, envelopeID string, documentID int,
	filename, contentType string, data io.Reader) (json.RawMessage, error) {
	account, err := c.accountPath(ctx)
	if err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = "application/pdf"
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return nil, fmt.Errorf("read document data: %w", err)
	}
	return c.do(ctx, "uploadDocument", http.MethodPut,
		account+"/envelopes/"+envelopeID+"/documents/"+strconv.Itoa(documentID), requestOpts{
			rawBody:     raw,
			contentType: contentType,
			headers: map[string]string{
				"Content-Disposition": fmt.Sprintf("filename=%q", filename),
			},
		})
}

// DeleteDocuments removes the listed documents from the envelope.
func (c *SignClient) DeleteDocuments(ctx context.Context, envelopeID string, documentIDs ...int) error {
	account, err := c.accountPath(ctx)
	if err != nil {
		return err
	}
	payload := map[string]interface{}{}
	if len(documentIDs) > 0 {
		payload["documents"] = documentRefs(documentIDs)
	}
	_, err = c.do(ctx, "deleteDocuments", http.MethodDelete,
		account+"/envelopes/"+envelopeID+"/documents/", requestOpts{body: payload})
	return err
}
