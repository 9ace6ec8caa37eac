package testhelpers

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"time"
)

// CallbackRecipient is one recipient entry in a generated notification body.
type CallbackRecipient struct {
	RecipientID  string
	ClientUserID string
	Email        string
	Name         string
	Status       string
	StatusTime   time.Time
}

// CallbackData drives NotificationBody.
type CallbackData struct {
	EnvelopeID     string
	Status         string
	StatusTime     time.Time
	TimeZoneOffset int
	Recipients     []CallbackRecipient
}

// NotificationBody renders a Connect-style XML notification for tests,
// mimicking the bodies DocuSign posts to a registered callback URL.
func NotificationBody(data CallbackData) []byte {
	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<DocuSignEnvelopeInformation xmlns="http://www.docusign.net/API/3.0">`)
	buf.WriteString("<EnvelopeStatus>")

	buf.WriteString("<RecipientStatuses>")
	for _, r := range data.Recipients {
		buf.WriteString("<RecipientStatus>")
		buf.WriteString("<Type>Signer</Type>")
		writeElem(&buf, "Email", r.Email)
		writeElem(&buf, "UserName", r.Name)
		if !r.StatusTime.IsZero() {
			writeElem(&buf, titleCase(r.Status), formatCallbackTime(r.StatusTime))
		}
		writeElem(&buf, "Status", titleCase(r.Status))
		writeElem(&buf, "RecipientId", r.RecipientID)
		if r.ClientUserID != "" {
			writeElem(&buf, "ClientUserId", r.ClientUserID)
		}
		buf.WriteString("</RecipientStatus>")
	}
	buf.WriteString("</RecipientStatuses>")

	writeElem(&buf, "TimeZoneOffset", fmt.Sprintf("%d", data.TimeZoneOffset))
	writeElem(&buf, "EnvelopeID", data.EnvelopeID)
	writeElem(&buf, "Status", titleCase(data.Status))
	if !data.StatusTime.IsZero() {
		writeElem(&buf, titleCase(data.Status), formatCallbackTime(data.StatusTime))
	}

	buf.WriteString("</EnvelopeStatus>")
	buf.WriteString("</DocuSignEnvelopeInformation>")
	return buf.Bytes()
}

func writeElem(buf *bytes.Buffer, name, value string) {
	buf.WriteString("<" + name + ">")
	_ = xml.EscapeText(buf, []byte(value))
	buf.WriteString("</" + name + ">")
}

func formatCallbackTime(t time.Time) string {
	return t.Format("2006-01-02T15:04:05.999999")
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	b := []byte(s)
	if b[0] >= 'a' && b[0] <= 'z' {
		b[0] -= 'a' - 'A'
	}
	return string(b)
}
