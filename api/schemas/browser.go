package schemas

import "time"

// -- Browser Artifact Schemas --

// Cookie is a local replacement for the CDP network cookie type, so that
// consumers of the API surface do not need to import cdproto. Expires is the
// zero time for session cookies.
type Cookie struct {
	Name     string    `json:"name"`
	Value    string    `json:"value"`
	Domain   string    `json:"domain"`
	Path     string    `json:"path"`
	Expires  time.Time `json:"expires,omitempty"`
	HTTPOnly bool      `json:"httpOnly"`
	Secure   bool      `json:"secure"`
}

// FormSummary describes a single form found on a page.
type FormSummary struct {
	ID     string   `json:"id"`
	Action string   `json:"action"`
	Fields []string `json:"fields"`
}

// PageSummary is a compact structural digest of a rendered page. It is cheap
// to log and carries enough shape information (form IDs, field names, link and
// input counts) to tell a login page from a dashboard from an error page
// without storing the DOM itself.
type PageSummary struct {
	Title  string        `json:"title"`
	Forms  []FormSummary `json:"forms"`
	Links  int           `json:"links"`
	Inputs int           `json:"inputs"`
}
