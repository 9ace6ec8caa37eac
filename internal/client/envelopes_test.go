package client

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/esignworks/signflow/internal/models"
)

func testEnvelope() *models.Envelope {
	return &models.Envelope{
		Status:       models.EnvelopeStatusSent,
		EmailSubject: "This is the subject",
		EmailBlurb:   "This is the body",
		Documents: []models.Document{
			{DocumentID: 1, Name: "document.pdf", Data: strings.NewReader("%PDF-1.4 fake content")},
		},
		Recipients: []models.Signer{
			{
				Email:       "signer@example.com",
				Name:        "Zorro",
				RecipientID: 1,
				AccessCode:  "0000",
				Tabs: []models.Tab{
					models.SignHereTab{TabPosition: models.TabPosition{DocumentID: 1, PageNumber: 1, XPosition: 100, YPosition: 100}},
					models.ApproveTab{TabPosition: models.TabPosition{DocumentID: 1, PageNumber: 1, XPosition: 100, YPosition: 200}},
				},
			},
		},
	}
}

func TestEnvelopeMultipartBody_Shape(t *testing.T) {
	envelope := testEnvelope()
	contentType, body, err := envelopeMultipartBody(envelope, true)
	if err != nil {
		t.Fatalf("envelopeMultipartBody() error = %v", err)
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("ParseMediaType(%q) error = %v", contentType, err)
	}
	if mediaType != "multipart/form-data" {
		t.Errorf("media type = %q, want multipart/form-data", mediaType)
	}

	reader := multipart.NewReader(strings.NewReader(string(body)), params["boundary"])

	// First part: the envelope JSON.
	jsonPart, err := reader.NextPart()
	if err != nil {
		t.Fatalf("NextPart() error = %v", err)
	}
	if got := jsonPart.Header.Get("Content-Type"); got != "application/json; charset=UTF-8" {
		t.Errorf("json part Content-Type = %q", got)
	}
	if got := jsonPart.Header.Get("Content-Disposition"); got != "form-data" {
		t.Errorf("json part Content-Disposition = %q", got)
	}
	jsonRaw, _ := io.ReadAll(jsonPart)
	var payload map[string]interface{}
	if err := json.Unmarshal(jsonRaw, &payload); err != nil {
		t.Fatalf("json part is not valid JSON: %v", err)
	}
	if payload["emailSubject"] != "This is the subject" {
		t.Errorf("emailSubject = %v", payload["emailSubject"])
	}

	// Second part: the PDF.
	pdfPart, err := reader.NextPart()
	if err != nil {
		t.Fatalf("NextPart() pdf error = %v", err)
	}
	if got := pdfPart.Header.Get("Content-Type"); got != "application/pdf" {
		t.Errorf("pdf part Content-Type = %q", got)
	}
	disposition := pdfPart.Header.Get("Content-Disposition")
	if !strings.Contains(disposition, `filename="document.pdf"`) || !strings.Contains(disposition, "documentId=1") {
		t.Errorf("pdf part Content-Disposition = %q", disposition)
	}
	pdfRaw, _ := io.ReadAll(pdfPart)
	if string(pdfRaw) != "%PDF-1.4 fake content" {
		t.Errorf("pdf content = %q", pdfRaw)
	}

	if _, err := reader.NextPart(); err != io.EOF {
		t.Errorf("expected exactly two parts, got extra part (err = %v)", err)
	}
}

func TestEnvelopeMultipartBody_TemplateOmitsDocuments(t *testing.T) {
	envelope := &models.Envelope{
		Status:     models.EnvelopeStatusSent,
		TemplateID: "template-1",
		TemplateRoles: []models.TemplateRole{
			{RoleName: "employee", Name: "Jean", Email: "jean@example.com"},
		},
	}
	contentType, body, err := envelopeMultipartBody(envelope, false)
	if err != nil {
		t.Fatalf("envelopeMultipartBody() error = %v", err)
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		t.Fatalf("ParseMediaType() error = %v", err)
	}
	reader := multipart.NewReader(strings.NewReader(string(body)), params["boundary"])
	if _, err := reader.NextPart(); err != nil {
		t.Fatalf("NextPart() error = %v", err)
	}
	if _, err := reader.NextPart(); err != io.EOF {
		t.Errorf("template body must contain only the JSON part, got extra (err = %v)", err)
	}
}

func TestEnvelopeMultipartBody_MissingDocumentData(t *testing.T) {
	envelope := &models.Envelope{
		Documents: []models.Document{{DocumentID: 1, Name: "document.pdf"}},
	}
	if _, _, err := envelopeMultipartBody(envelope, true); err == nil {
		t.Fatal("expected error for document without data, got nil")
	}
}

func TestCreateEnvelope_SetsEnvelopeID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/login_information", loginHandler("acct-1"))
	mux.HandleFunc("/accounts/acct-1/envelopes", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/form-data" {
			t.Errorf("Content-Type = %q", r.Header.Get("Content-Type"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"envelopeId":"eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	c, err := New(testConfig(server.URL))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	envelope := testEnvelope()
	id, err := c.CreateEnvelope(context.Background(), envelope)
	if err != nil {
		t.Fatalf("CreateEnvelope() error = %v", err)
	}
	if id != "eeeeeeee-eeee-eeee-eeee-eeeeeeeeeeee" {
		t.Errorf("envelope ID = %q", id)
	}
	if envelope.EnvelopeID != id {
		t.Errorf("envelope.EnvelopeID = %q, want %q", envelope.EnvelopeID, id)
	}
}

func TestCreateEnvelope_SOBOHeader(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes", func(w http.ResponseWriter, r *http.Request) {
		var auth map[string]string
		if err := json.Unmarshal([]byte(r.Header.Get("X-DocuSign-Authentication")), &auth); err != nil {
			t.Fatalf("auth header: %v", err)
		}
		if auth["SendOnBehalfOf"] != "sobo@example.com" {
			t.Errorf("SendOnBehalfOf = %q", auth["SendOnBehalfOf"])
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"envelopeId":"env-1"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	envelope := testEnvelope()
	envelope.SOBOEmail = "sobo@example.com"
	if _, err := c.CreateEnvelope(context.Background(), envelope); err != nil {
		t.Fatalf("CreateEnvelope() error = %v", err)
	}
}

func TestVoidEnvelope_Payload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes/env-1/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		if body["status"] != "voided" || body["voidedReason"] != "no longer needed" {
			t.Errorf("body = %v", body)
		}
		_, _ = w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)
	if err := c.VoidEnvelope(context.Background(), "env-1", "no longer needed"); err != nil {
		t.Fatalf("VoidEnvelope() error = %v", err)
	}
}

func TestSendEnvelope_Payload(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes/env-1/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["status"] != "sent" {
			t.Errorf("status = %q, want sent", body["status"])
		}
		_, _ = w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)
	if err := c.SendEnvelope(context.Background(), "env-1"); err != nil {
		t.Fatalf("SendEnvelope() error = %v", err)
	}
}

func TestDeleteEnvelopes_MovesToRecycleBin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/folders/recyclebin/", func(w http.ResponseWriter, r *http.Request) {
		var body map[string][]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body["envelopeIds"]) != 2 {
			t.Errorf("envelopeIds = %v", body["envelopeIds"])
		}
		_, _ = w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)
	if err := c.DeleteEnvelopes(context.Background(), "env-1", "env-2"); err != nil {
		t.Fatalf("DeleteEnvelopes() error = %v", err)
	}
}

func TestSearchEnvelopes_QueryParams(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("from_date") != "1/1/1900" {
			t.Errorf("from_date = %q", q.Get("from_date"))
		}
		if q.Get("status") != "completed" {
			t.Errorf("status = %q", q.Get("status"))
		}
		if q.Get("custom_field") != "orderId=42" {
			t.Errorf("custom_field = %q", q.Get("custom_field"))
		}
		_, _ = w.Write([]byte(`{"envelopes":[]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)
	_, err := c.SearchEnvelopes(context.Background(), SearchOptions{
		Status:           "completed",
		CustomField:      "orderId",
		CustomFieldValue: "42",
	})
	if err != nil {
		t.Fatalf("SearchEnvelopes() error = %v", err)
	}
}

func TestRecipientView_ReturnsSigningURL(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes/env-1/views/recipient", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["authenticationMethod"] != "none" {
			t.Errorf("authenticationMethod = %q, want default none", body["authenticationMethod"])
		}
		if body["clientUserId"] != "user-db-id" || body["returnUrl"] != "http://example.com" {
			t.Errorf("body = %v", body)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"url":"https://demo.docusign.net/signing/startinsession.aspx?t=abc"}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)

	url, err := c.RecipientView(context.Background(), RecipientViewRequest{
		EnvelopeID:   "env-1",
		ClientUserID: "user-db-id",
		Email:        "signer@example.com",
		UserName:     "Zorro",
		ReturnURL:    "http://example.com",
	})
	if err != nil {
		t.Fatalf("RecipientView() error = %v", err)
	}
	if !strings.HasPrefix(url, "https://demo.docusign.net/signing/") {
		t.Errorf("signing URL = %q", url)
	}
}

func TestEnvelopeRecipients_Parses(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes/env-1/recipients", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"signers": [
				{"recipientId":"31","userId":"21","clientUserId":"1","routingOrder":"11","email":"jean@example.com","name":"Jean"}
			],
			"recipientCount": "1"
		}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)

	resp, err := c.EnvelopeRecipients(context.Background(), "env-1")
	if err != nil {
		t.Fatalf("EnvelopeRecipients() error = %v", err)
	}
	if len(resp.Signers) != 1 || resp.Signers[0].UserID != "21" {
		t.Errorf("recipients = %+v", resp)
	}
}

func TestAuditEvents_FlattensEventFields(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes/env-1/audit_events", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{
			"auditEvents": [
				{"eventFields": [
					{"name":"Action","value":"Sent Invitations"},
					{"name":"UserName","value":"John Doe"}
				]},
				{"eventFields": [
					{"name":"Action","value":"Viewed"}
				]}
			]
		}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)

	events, err := c.AuditEvents(context.Background(), "env-1")
	if err != nil {
		t.Fatalf("AuditEvents() error = %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0]["Action"] != "Sent Invitations" || events[0]["UserName"] != "John Doe" {
		t.Errorf("first event = %v", events[0])
	}
	if events[1]["Action"] != "Viewed" {
		t.Errorf("second event = %v", events[1])
	}
}

func TestEnvelopeDocuments_List(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes/env-1/documents", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"envelopeDocuments":[{"documentId":"1","name":"document.pdf","type":"content"}]}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)

	docs, err := c.EnvelopeDocuments(context.Background(), "env-1")
	if err != nil {
		t.Fatalf("EnvelopeDocuments() error = %v", err)
	}
	if len(docs) != 1 || docs[0].Name != "document.pdf" {
		t.Errorf("docs = %+v", docs)
	}
}

func TestEnvelopeDocument_Streams(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes/env-1/documents/1", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 content"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)

	body, err := c.EnvelopeDocument(context.Background(), "env-1", "1")
	if err != nil {
		t.Fatalf("EnvelopeDocument() error = %v", err)
	}
	defer body.Close()
	raw, err := io.ReadAll(body)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(raw) != "%PDF-1.4 content" {
		t.Errorf("content = %q", raw)
	}
}

func TestCombinedDocuments_QueryFlags(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes/env-1/documents/combined/", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("watermark") != "true" || q.Get("certificate") != "false" {
			t.Errorf("query = %v", q)
		}
		_, _ = w.Write([]byte("%PDF-1.4 combined"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)

	body, err := c.CombinedDocuments(context.Background(), "env-1", true, false)
	if err != nil {
		t.Fatalf("CombinedDocuments() error = %v", err)
	}
	body.Close()
}

func TestUploadDocument_Headers(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes/env-1/documents/2", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("method = %s, want PUT", r.Method)
		}
		if got := r.Header.Get("Content-Disposition"); got != `filename="contract.pdf"` {
			t.Errorf("Content-Disposition = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/pdf" {
			t.Errorf("Content-Type = %q", got)
		}
		_, _ = w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)

	_, err := c.UploadDocument(context.Background(), "env-1", 2, "contract.pdf", "", strings.NewReader("%PDF-1.4"))
	if err != nil {
		t.Fatalf("UploadDocument() error = %v", err)
	}
}

func TestDeleteDocuments_Body(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/acct-1/envelopes/env-1/documents/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s, want DELETE", r.Method)
		}
		var body struct {
			Documents []documentRef `json:"documents"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if len(body.Documents) != 2 || body.Documents[0].DocumentID != "1" {
			t.Errorf("documents = %v", body.Documents)
		}
		_, _ = w.Write([]byte(`{}`))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	cfg := testConfig(server.URL)
	cfg.AccountID = "acct-1"
	c, _ := New(cfg)
	if err := c.DeleteDocuments(context.Background(), "env-1", 1, 2); err != nil {
		t.Fatalf("DeleteDocuments() error = %v", err)
	}
}
