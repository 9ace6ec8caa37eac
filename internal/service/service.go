// Package service orchestrates signing flows on top of the API client:
// account resolution, embedded signing, template sends. Login and template
// lookups use a cache-aside pattern so repeated sends do not hammer the API.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/esignworks/signflow/internal/cache"
	"github.com/esignworks/signflow/internal/client"
	"github.com/esignworks/signflow/internal/health"
	"github.com/esignworks/signflow/internal/models"
	"github.com/esignworks/signflow/internal/observability"
	"github.com/esignworks/signflow/internal/validation"
)

// SigningService is the service layer over the signing API.
type SigningService struct {
	client      client.API
	cache       cache.Cache
	loginTTL    time.Duration
	templateTTL time.Duration
}

// NewSigningService creates a SigningService. loginTTL and templateTTL set
// cache expirations for account resolution and template lookups.
func NewSigningService(api client.API, cache cache.Cache, loginTTL, templateTTL time.Duration) *SigningService {
	return &SigningService{
		client:      api,
		cache:       cache,
		loginTTL:    loginTTL,
		templateTTL: templateTTL,
	}
}

// loggerFromContext extracts a zap.Logger from request context if present.
// Returns nil if logger is not found or context is invalid.
func loggerFromContext(ctx context.Context) *zap.Logger {
	if v := ctx.Value("logger"); v != nil {
		if l, ok := v.(*zap.Logger); ok && l != nil {
			return l
		}
	}
	return nil
}

// EmbeddedSigningRequest describes one document to send for embedded signing.
type EmbeddedSigningRequest struct {
	SignerEmail  string
	SignerName   string
	ClientUserID string
	EmailSubject string
	EmailBlurb   string
	ReturnURL    string
	DocumentName string
	Document     io.Reader

	// SOBOEmail sends the envelope on behalf of another account user.
	SOBOEmail string
}

// EmbeddedSigningResult is the created envelope and the one-time signing URL.
type EmbeddedSigningResult struct {
	EnvelopeID string
	SigningURL string
}

// TemplateSigningRequest describes an envelope created from a stored template.
type TemplateSigningRequest struct {
	TemplateID   string
	RoleName     string
	SignerEmail  string
	SignerName   string
	ClientUserID string
	EmailSubject string
	EmailBlurb   string
	CallbackURL  string
}

// ResolveAccount returns login information, caching the result so repeated
// envelope sends do not re-resolve on every call. The client's account ID is
// set from the default login account either way.
func (s *SigningService) ResolveAccount(ctx context.Context) (models.LoginInformation, error) {
	const key = "login:default"
	logger := loggerFromContext(ctx)

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		var login models.LoginInformation
		if err := json.Unmarshal(cached, &login); err == nil && len(login.LoginAccounts) > 0 {
			observability.CacheHitsTotal.WithLabelValues("login").Inc()
			s.client.SetAccount(login.LoginAccounts[0].AccountID)
			if logger != nil {
				logger.Debug("login cache hit", zap.String("accountId", login.LoginAccounts[0].AccountID))
			}
			return login, nil
		}
	}

	login, err := s.client.LoginInformation(ctx)
	if err != nil {
		health.RecordError()
		return models.LoginInformation{}, fmt.Errorf("resolve account: %w", err)
	}
	health.RecordSuccess()

	if data, err := json.Marshal(login); err == nil {
		setStart := time.Now()
		if setErr := s.cache.Set(ctx, key, data, s.loginTTL); setErr != nil {
			observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
			observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
			if logger != nil {
				logger.Warn("login cache set failed", zap.Error(setErr))
			}
		} else {
			observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
		}
	}
	return login, nil
}

// CreateEmbeddedSigning creates a one-signer envelope around the request's
// document and returns the envelope ID plus the embedded signing URL.
func (s *SigningService) CreateEmbeddedSigning(ctx context.Context, req EmbeddedSigningRequest) (EmbeddedSigningResult, error) {
	logger := loggerFromContext(ctx)

	email, err := validation.ValidateEmail(req.SignerEmail)
	if err != nil {
		return EmbeddedSigningResult{}, err
	}
	name, err := validation.ValidateName(req.SignerName)
	if err != nil {
		return EmbeddedSigningResult{}, err
	}
	subject, err := validation.ValidateSubject(req.EmailSubject)
	if err != nil {
		return EmbeddedSigningResult{}, err
	}
	if subject == "" {
		subject = "Please sign this document"
	}
	if req.Document == nil {
		return EmbeddedSigningResult{}, fmt.Errorf("document data is required")
	}
	clientUserID := req.ClientUserID
	if clientUserID == "" {
		clientUserID = email
	}

	envelope := &models.Envelope{
		Status:       models.EnvelopeStatusSent,
		EmailSubject: subject,
		EmailBlurb:   req.EmailBlurb,
		SOBOEmail:    req.SOBOEmail,
		Documents: []models.Document{
			{DocumentID: 1, Name: documentName(req.DocumentName), Data: req.Document},
		},
		Recipients: []models.Signer{
			{
				RecipientID:  1,
				RoutingOrder: 1,
				ClientUserID: clientUserID,
				Email:        email,
				Name:         name,
				Tabs: []models.Tab{
					models.SignHereTab{TabPosition: models.TabPosition{
						DocumentID: 1, PageNumber: 1, XPosition: 100, YPosition: 100,
					}},
				},
			},
		},
	}

	envelopeID, err := s.client.CreateEnvelope(ctx, envelope)
	if err != nil {
		health.RecordError()
		return EmbeddedSigningResult{}, fmt.Errorf("create envelope: %w", err)
	}
	health.RecordSuccess()

	url, err := s.client.RecipientView(ctx, client.RecipientViewRequest{
		EnvelopeID:   envelopeID,
		ClientUserID: clientUserID,
		Email:        email,
		UserName:     name,
		ReturnURL:    req.ReturnURL,
	})
	if err != nil {
		health.RecordError()
		return EmbeddedSigningResult{}, fmt.Errorf("recipient view for envelope %s: %w", envelopeID, err)
	}
	health.RecordSuccess()

	if logger != nil {
		logger.Info("embedded signing created",
			zap.String("envelopeId", envelopeID),
			zap.String("signer", email))
	}
	return EmbeddedSigningResult{EnvelopeID: envelopeID, SigningURL: url}, nil
}

// CreateFromTemplate creates and sends an envelope from a stored template,
// filling one role. Returns the created envelope ID.
func (s *SigningService) CreateFromTemplate(ctx context.Context, req TemplateSigningRequest) (string, error) {
	if strings.TrimSpace(req.TemplateID) == "" {
		return "", fmt.Errorf("template id is required")
	}
	email, err := validation.ValidateEmail(req.SignerEmail)
	if err != nil {
		return "", err
	}
	name, err := validation.ValidateName(req.SignerName)
	if err != nil {
		return "", err
	}
	subject, err := validation.ValidateSubject(req.EmailSubject)
	if err != nil {
		return "", err
	}
	if subject == "" {
		subject = "Please sign this document"
	}

	envelope := &models.Envelope{
		Status:       models.EnvelopeStatusSent,
		EmailSubject: subject,
		EmailBlurb:   req.EmailBlurb,
		TemplateID:   req.TemplateID,
		TemplateRoles: []models.TemplateRole{
			{
				RoleName:     req.RoleName,
				ClientUserID: req.ClientUserID,
				Email:        email,
				Name:         name,
			},
		},
	}
	if req.CallbackURL != "" {
		envelope.EventNotification = models.DefaultEventNotification(req.CallbackURL)
	}

	envelopeID, err := s.client.CreateEnvelopeFromTemplate(ctx, envelope)
	if err != nil {
		health.RecordError()
		return "", fmt.Errorf("create envelope from template %s: %w", req.TemplateID, err)
	}
	health.RecordSuccess()
	return envelopeID, nil
}

// Template returns the template definition, cached under the template ID.
func (s *SigningService) Template(ctx context.Context, templateID string) (json.RawMessage, error) {
	if strings.TrimSpace(templateID) == "" {
		return nil, fmt.Errorf("template id is required")
	}
	key := "template:" + templateID

	getStart := time.Now()
	cached, ok, err := s.cache.Get(ctx, key)
	getDuration := time.Since(getStart).Seconds()
	if err != nil {
		observability.CacheErrorsTotal.WithLabelValues("get", categorizeCacheError(err)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "error").Observe(getDuration)
	} else if ok {
		observability.CacheOperationDurationSeconds.WithLabelValues("get", "success").Observe(getDuration)
		observability.CacheHitsTotal.WithLabelValues("template").Inc()
		return json.RawMessage(cached), nil
	}

	tpl, err := s.client.Template(ctx, templateID)
	if err != nil {
		health.RecordError()
		return nil, fmt.Errorf("get template %s: %w", templateID, err)
	}
	health.RecordSuccess()

	setStart := time.Now()
	if setErr := s.cache.Set(ctx, key, tpl, s.templateTTL); setErr != nil {
		observability.CacheErrorsTotal.WithLabelValues("set", categorizeCacheError(setErr)).Inc()
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "error").Observe(time.Since(setStart).Seconds())
	} else {
		observability.CacheOperationDurationSeconds.WithLabelValues("set", "success").Observe(time.Since(setStart).Seconds())
	}
	return tpl, nil
}

// EnvelopeRecipients returns the server-side recipient list for an envelope.
func (s *SigningService) EnvelopeRecipients(ctx context.Context, envelopeID string) (models.RecipientsResponse, error) {
	id, err := validation.ValidateEnvelopeID(envelopeID)
	if err != nil {
		return models.RecipientsResponse{}, err
	}
	resp, err := s.client.EnvelopeRecipients(ctx, id)
	if err != nil {
		health.RecordError()
		return models.RecipientsResponse{}, fmt.Errorf("recipients for envelope %s: %w", id, err)
	}
	health.RecordSuccess()
	return resp, nil
}

// categorizeCacheError returns a stable label for cache error metrics (timeout, connection, unknown).
func categorizeCacheError(err error) string {
	if err == nil {
		return "unknown"
	}
	errStr := err.Error()
	if strings.Contains(errStr, "timeout") {
		return "timeout"
	}
	if strings.Contains(errStr, "connection") || strings.Contains(errStr, "network") {
		return "connection"
	}
	return "unknown"
}

func documentName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "document.pdf"
	}
	return name
}
