package models

// Tab is a placeholder anchored to a position on a document page: a place
// to sign, approve, or fill in data.
type Tab interface {
	tab()
}

// TabPosition holds the fields shared by all anchored tabs.
type TabPosition struct {
	DocumentID int `json:"documentId"`
	PageNumber int `json:"pageNumber"`
	XPosition  int `json:"xPosition"`
	YPosition  int `json:"yPosition"`
}

// SignHereTab asks the recipient to place a signature.
type SignHereTab struct {
	TabPosition
}

func (SignHereTab) tab() {}

// ApproveTab lets the recipient approve the document without signing.
type ApproveTab struct {
	TabPosition
}

func (ApproveTab) tab() {}

// tabGroup is the wire grouping of tabs by type. signHereTabs is always
// emitted, matching the API payloads the service produces historically.
type tabGroup struct {
	SignHereTabs []SignHereTab `json:"signHereTabs"`
	ApproveTabs  []ApproveTab  `json:"approveTabs,omitempty"`
}

func groupTabs(tabs []Tab) tabGroup {
	g := tabGroup{SignHereTabs: []SignHereTab{}}
	for _, t := range tabs {
		switch v := t.(type) {
		case SignHereTab:
			g.SignHereTabs = append(g.SignHereTabs, v)
		case ApproveTab:
			g.ApproveTabs = append(g.ApproveTabs, v)
		}
	}
	return g
}
