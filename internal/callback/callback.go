// Package callback parses envelope event notifications the signing platform
// POSTs to a registered Connect URL. Payloads are XML; timestamps carry no
// zone and must be interpreted with the envelope's TimeZoneOffset.
package callback

import (
	"encoding/xml"
	"fmt"
	"strings"
	"time"
)

// Notification is a parsed envelope event notification.
type Notification struct {
	doc envelopeInformation
}

type envelopeInformation struct {
	XMLName        xml.Name       `xml:"DocuSignEnvelopeInformation"`
	EnvelopeStatus envelopeStatus `xml:"EnvelopeStatus"`
}

type envelopeStatus struct {
	EnvelopeID     string            `xml:"EnvelopeID"`
	Status         string            `xml:"Status"`
	Subject        string            `xml:"Subject"`
	TimeZone       string            `xml:"TimeZone"`
	TimeZoneOffset int               `xml:"TimeZoneOffset"`
	Recipients     []recipientStatus `xml:"RecipientStatuses>RecipientStatus"`
	StatusTimes
}

type recipientStatus struct {
	Type          string `xml:"Type"`
	RecipientID   string `xml:"RecipientId"`
	ClientUserID  string `xml:"ClientUserId"`
	Email         string `xml:"Email"`
	UserName      string `xml:"UserName"`
	RoutingOrder  string `xml:"RoutingOrder"`
	Status        string `xml:"Status"`
	DeclineReason string `xml:"DeclineReason"`
	StatusTimes
}

// StatusTimes holds the per-status timestamp elements. Each element is named
// after the status it records, e.g. <Sent>2014-10-06T01:10:00.000012</Sent>.
type StatusTimes struct {
	Created       string `xml:"Created"`
	Sent          string `xml:"Sent"`
	Delivered     string `xml:"Delivered"`
	Signed        string `xml:"Signed"`
	Completed     string `xml:"Completed"`
	Declined      string `xml:"Declined"`
	Voided        string `xml:"Voided"`
	AutoResponded string `xml:"AutoResponded"`
}

func (s StatusTimes) forStatus(status string) string {
	switch strings.ToLower(status) {
	case "created":
		return s.Created
	case "sent":
		return s.Sent
	case "delivered":
		return s.Delivered
	case "signed":
		return s.Signed
	case "completed":
		return s.Completed
	case "declined":
		return s.Declined
	case "voided":
		return s.Voided
	case "autoresponded":
		return s.AutoResponded
	}
	return ""
}

// Recipient is one recipient's state within a notification.
type Recipient struct {
	ID           string
	ClientUserID string
	Email        string
	Name         string
	Status       string
}

// Parse decodes a Connect notification body.
func Parse(body []byte) (*Notification, error) {
	var doc envelopeInformation
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("parse notification: %w", err)
	}
	if doc.EnvelopeStatus.EnvelopeID == "" {
		return nil, fmt.Errorf("parse notification: missing envelope id")
	}
	return &Notification{doc: doc}, nil
}

// EnvelopeID returns the envelope the notification is about.
func (n *Notification) EnvelopeID() string {
	return n.doc.EnvelopeStatus.EnvelopeID
}

// EnvelopeStatus returns the envelope status, lowercased to match the values
// used on the REST side ("sent", "completed", ...).
func (n *Notification) EnvelopeStatus() string {
	return strings.ToLower(n.doc.EnvelopeStatus.Status)
}

// Subject returns the envelope's email subject.
func (n *Notification) Subject() string {
	return n.doc.EnvelopeStatus.Subject
}

// TimezoneOffset returns the hour offset timestamps are expressed in.
func (n *Notification) TimezoneOffset() int {
	return n.doc.EnvelopeStatus.TimeZoneOffset
}

// Recipients returns the recipients and their statuses, in document order.
func (n *Notification) Recipients() []Recipient {
	out := make([]Recipient, 0, len(n.doc.EnvelopeStatus.Recipients))
	for _, r := range n.doc.EnvelopeStatus.Recipients {
		out = append(out, Recipient{
			ID:           r.RecipientID,
			ClientUserID: r.ClientUserID,
			Email:        r.Email,
			Name:         r.UserName,
			Status:       strings.ToLower(r.Status),
		})
	}
	return out
}

// EnvelopeStatusTime returns when the envelope entered the given status.
// Returns an error when the notification carries no timestamp for it.
func (n *Notification) EnvelopeStatusTime(status string) (time.Time, error) {
	return n.parseTime(n.doc.EnvelopeStatus.forStatus(status), status)
}

// RecipientStatusTime returns when the recipient entered the given status.
// recipientID matches the RecipientId element, falling back to ClientUserId.
func (n *Notification) RecipientStatusTime(recipientID, status string) (time.Time, error) {
	for _, r := range n.doc.EnvelopeStatus.Recipients {
		if r.RecipientID == recipientID || r.ClientUserID == recipientID {
			return n.parseTime(r.forStatus(status), status)
		}
	}
	return time.Time{}, fmt.Errorf("no recipient %q in notification", recipientID)
}

// timeLayout matches notification timestamps. A fractional second in the
// value is accepted even though the layout omits it.
const timeLayout = "2006-01-02T15:04:05"

func (n *Notification) parseTime(value, status string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("no %q timestamp in notification", status)
	}
	loc := time.FixedZone("", n.doc.EnvelopeStatus.TimeZoneOffset*3600)
	t, err := time.ParseInLocation(timeLayout, value, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse %q timestamp: %w", status, err)
	}
	return t, nil
}
