package models

import (
	"encoding/json"
	"io"
	"sort"
	"strconv"
)

// Envelope statuses understood by the DocuSign REST API.
const (
	EnvelopeStatusCreated   = "created"
	EnvelopeStatusDraft     = "created"
	EnvelopeStatusSent      = "sent"
	EnvelopeStatusDelivered = "delivered"
	EnvelopeStatusCompleted = "completed"
	EnvelopeStatusDeclined  = "declined"
	EnvelopeStatusVoided    = "voided"
)

// Recipient statuses reported by DocuSign for each signer.
const (
	RecipientStatusCreated       = "created"
	RecipientStatusSent          = "sent"
	RecipientStatusDelivered     = "delivered"
	RecipientStatusSigned        = "signed"
	RecipientStatusCompleted     = "completed"
	RecipientStatusDeclined      = "declined"
	RecipientStatusAutoResponded = "autoresponded"
)

// Document is a file to sign within an envelope. Data is streamed into the
// multipart request body and never serialized as JSON.
type Document struct {
	DocumentID int    `json:"documentId"`
	Name       string `json:"name"`

	Data io.Reader `json:"-"`
}

// Signer is a recipient who must sign documents in the envelope.
// An empty ClientUserID means a remote recipient (DocuSign emails a signing
// link); a non-empty one means embedded signing driven by the integrator.
type Signer struct {
	ClientUserID string `json:"clientUserId,omitempty"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	RecipientID  int    `json:"recipientId"`
	RoutingOrder int    `json:"routingOrder,omitempty"`
	AccessCode   string `json:"accessCode,omitempty"`

	// UserID is assigned by DocuSign once the envelope is created.
	UserID string `json:"userId,omitempty"`

	Tabs []Tab `json:"tabs,omitempty"`
}

// MarshalJSON groups tabs by concrete type the way the API expects
// (tabs.signHereTabs, tabs.approveTabs). The signHereTabs list is always
// present even when empty.
func (s Signer) MarshalJSON() ([]byte, error) {
	type alias Signer
	return json.Marshal(struct {
		alias
		Tabs tabGroup `json:"tabs"`
	}{
		alias: alias(s),
		Tabs:  groupTabs(s.Tabs),
	})
}

// TemplateRole binds a server-side template role to an actual recipient.
type TemplateRole struct {
	RoleName     string `json:"roleName"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ClientUserID string `json:"clientUserId,omitempty"`
	Tabs         []Tab  `json:"tabs,omitempty"`
}

func (r TemplateRole) MarshalJSON() ([]byte, error) {
	type alias TemplateRole
	out := struct {
		alias
		Tabs *tabGroup `json:"tabs,omitempty"`
	}{alias: alias(r)}
	if len(r.Tabs) > 0 {
		g := groupTabs(r.Tabs)
		out.Tabs = &g
	}
	return json.Marshal(out)
}

// EventNotification asks DocuSign Connect to POST status changes to URL.
type EventNotification struct {
	URL                       string          `json:"url"`
	LoggingEnabled            string          `json:"loggingEnabled,omitempty"`
	RequireAcknowledgment     string          `json:"requireAcknowledgment,omitempty"`
	IncludeDocuments          string          `json:"includeDocuments,omitempty"`
	IncludeTimeZone           string          `json:"includeTimeZone,omitempty"`
	UseSoapInterface          string          `json:"useSoapInterface,omitempty"`
	SignMessageWithX509Cert   string          `json:"signMessageWithX509Cert,omitempty"`
	EnvelopeEvents            []EnvelopeEvent `json:"envelopeEvents,omitempty"`
	RecipientEvents           []EnvelopeEvent `json:"recipientEvents,omitempty"`
	IncludeCertificateOfCompl string          `json:"includeCertificateOfCompletion,omitempty"`
}

// EnvelopeEvent names one status for which DocuSign Connect fires a callback.
type EnvelopeEvent struct {
	StatusCode         string `json:"envelopeEventStatusCode,omitempty"`
	RecipientEventCode string `json:"recipientEventStatusCode,omitempty"`
	IncludeDocuments   string `json:"includeDocuments,omitempty"`
}

// DefaultEventNotification subscribes url to every envelope and recipient
// status change, without document payloads.
func DefaultEventNotification(url string) *EventNotification {
	envelopeEvents := []EnvelopeEvent{
		{StatusCode: "Sent", IncludeDocuments: "false"},
		{StatusCode: "Delivered", IncludeDocuments: "false"},
		{StatusCode: "Completed", IncludeDocuments: "false"},
		{StatusCode: "Declined", IncludeDocuments: "false"},
		{StatusCode: "Voided", IncludeDocuments: "false"},
	}
	recipientEvents := []EnvelopeEvent{
		{RecipientEventCode: "AuthenticationFailed", IncludeDocuments: "false"},
		{RecipientEventCode: "AutoResponded", IncludeDocuments: "false"},
		{RecipientEventCode: "Completed", IncludeDocuments: "false"},
		{RecipientEventCode: "Declined", IncludeDocuments: "false"},
		{RecipientEventCode: "Delivered", IncludeDocuments: "false"},
		{RecipientEventCode: "Sent", IncludeDocuments: "false"},
	}
	return &EventNotification{
		URL:                   url,
		LoggingEnabled:        "true",
		RequireAcknowledgment: "true",
		IncludeTimeZone:       "true",
		UseSoapInterface:      "false",
		EnvelopeEvents:        envelopeEvents,
		RecipientEvents:       recipientEvents,
	}
}

// TextCustomField is a free-form envelope custom field.
type TextCustomField struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Required string `json:"required,omitempty"`
	Show     string `json:"show,omitempty"`
}

// ListCustomField restricts the value to one of ListItems.
type ListCustomField struct {
	Name      string   `json:"name"`
	Value     string   `json:"value"`
	ListItems []string `json:"listItems,omitempty"`
	Required  string   `json:"required,omitempty"`
	Show      string   `json:"show,omitempty"`
}

// Envelope is the unit of sending in DocuSign: documents plus recipients
// plus routing state. Create it via the client, then drive it with Send,
// Void, etc. EnvelopeID is set by DocuSign on creation.
type Envelope struct {
	EnvelopeID        string             `json:"-"`
	Status            string             `json:"status"`
	EmailSubject      string             `json:"emailSubject"`
	EmailBlurb        string             `json:"emailBlurb"`
	Documents         []Document         `json:"documents"`
	Recipients        []Signer           `json:"-"`
	TemplateID        string             `json:"templateId,omitempty"`
	TemplateRoles     []TemplateRole     `json:"templateRoles,omitempty"`
	EventNotification *EventNotification `json:"eventNotification,omitempty"`

	// SOBOEmail requests the envelope be sent on behalf of another user.
	SOBOEmail string `json:"-"`
}

// MarshalJSON nests signers under recipients.signers; both the documents and
// signers arrays are always present, matching what the API expects.
func (e Envelope) MarshalJSON() ([]byte, error) {
	type alias Envelope
	signers := e.Recipients
	if signers == nil {
		signers = []Signer{}
	}
	docs := e.Documents
	if docs == nil {
		docs = []Document{}
	}
	a := alias(e)
	a.Documents = docs
	return json.Marshal(struct {
		alias
		Recipients struct {
			Signers []Signer `json:"signers"`
		} `json:"recipients"`
	}{
		alias: a,
		Recipients: struct {
			Signers []Signer `json:"signers"`
		}{Signers: signers},
	})
}

// LoginAccount is one entry of the /login_information response.
type LoginAccount struct {
	AccountID       string `json:"accountId"`
	AccountIDGUID   string `json:"accountIdGuid"`
	BaseURL         string `json:"baseUrl"`
	Email           string `json:"email"`
	IsDefault       string `json:"isDefault"`
	Name            string `json:"name"`
	SiteDescription string `json:"siteDescription"`
	UserID          string `json:"userId"`
	UserName        string `json:"userName"`
}

// LoginInformation is the /login_information response.
type LoginInformation struct {
	LoginAccounts []LoginAccount `json:"loginAccounts"`
}

// RecipientsResponse is the wire shape of GET .../recipients. DocuSign
// returns numeric fields as strings.
type RecipientsResponse struct {
	Signers             []SignerResponse `json:"signers"`
	CurrentRoutingOrder string           `json:"currentRoutingOrder"`
	RecipientCount      string           `json:"recipientCount"`
}

// SignerResponse is one signer entry of a recipients response.
type SignerResponse struct {
	RecipientID  string `json:"recipientId"`
	UserID       string `json:"userId"`
	ClientUserID string `json:"clientUserId"`
	RoleName     string `json:"roleName"`
	RoutingOrder string `json:"routingOrder"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Status       string `json:"status"`
}

// ApplyRecipients replaces the envelope's signer list with the server-side
// view, ordered by routing order. DocuSign assigns userId values and may
// renumber recipients, so the response is authoritative.
func (e *Envelope) ApplyRecipients(resp RecipientsResponse) {
	signers := make([]Signer, 0, len(resp.Signers))
	for _, s := range resp.Signers {
		routing, _ := strconv.Atoi(s.RoutingOrder)
		recipientID, _ := strconv.Atoi(s.RecipientID)
		signers = append(signers, Signer{
			ClientUserID: s.ClientUserID,
			Email:        s.Email,
			Name:         s.Name,
			RecipientID:  recipientID,
			RoutingOrder: routing,
			UserID:       s.UserID,
		})
	}
	sort.SliceStable(signers, func(i, j int) bool {
		return signers[i].RoutingOrder < signers[j].RoutingOrder
	})
	e.Recipients = signers
}

// EnvelopeDocument is one entry of the envelope document list.
type EnvelopeDocument struct {
	DocumentID string `json:"documentId"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	URI        string `json:"uri"`
	Order      string `json:"order"`
}
