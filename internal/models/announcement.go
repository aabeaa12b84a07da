package models

import "time"

// RawAnnouncementItem is one element of the exchange API array, kept untyped.
type RawAnnouncementItem map[string]any

// AnnouncementRecord is the canonical row stored in equities_data.
// (Symbol, Subject, BroadcastTime) is the natural key.
type AnnouncementRecord struct {
	Symbol            string     `json:"symbol"`
	Subject           string     `json:"subject"`
	BroadcastTime     *time.Time `json:"broadcastTime"`
	CompanyName       *string    `json:"companyName"`
	Details           *string    `json:"details"`
	ReceiptTime       *time.Time `json:"receiptTime"`
	DisseminationTime *time.Time `json:"disseminationTime"`
	DifferenceSeconds *int64     `json:"differenceSeconds"`
	AttachmentURL     *string    `json:"attachmentUrl"`
	FileSize          *string    `json:"fileSize"`
}

// Key returns the natural key as a single comparable string.
func (r AnnouncementRecord) Key() string {
	ts := ""
	if r.BroadcastTime != nil {
		ts = r.BroadcastTime.UTC().Format(time.RFC3339Nano)
	}
	return r.Symbol + "|" + r.Subject + "|" + ts
}

// AnnouncementDocument is the search-index view of an announcement.
type AnnouncementDocument struct {
	ID            string    `json:"id"`
	Symbol        string    `json:"symbol"`
	CompanyName   string    `json:"company_name"`
	Subject       string    `json:"subject"`
	Details       string    `json:"details"`
	BroadcastTime time.Time `json:"broadcast_time"`
	AttachmentURL string    `json:"attachment_url,omitempty"`
	Keywords      []string  `json:"keywords"`
}

// Stats summarizes equities_data for the dashboard.
type Stats struct {
	TotalRecords       int64      `json:"totalRecords"`
	NewEntriesToday    int64      `json:"newEntriesToday"`
	NewEntriesThisWeek int64      `json:"newEntriesThisWeek"`
	LastUpdated        *time.Time `json:"lastUpdated"`
}
