package schemas

import (
	"context"
	"time"
)

// -- Store Interface --

// ClaimStore defines a generic interface for the persistent claim history.
// This abstraction keeps the scheduler and the reporting layer independent of
// the specific database implementation (e.g., PostgreSQL, in-memory).
type ClaimStore interface {
	// SaveClaims persists a batch of claim records produced by one or more
	// scheduler cycles.
	SaveClaims(ctx context.Context, claims []ClaimRecord) error
	// RecentClaims retrieves the most recent claim records for an address,
	// newest first, up to limit.
	RecentClaims(ctx context.Context, address string, limit int) ([]ClaimRecord, error)
}

// -- Browser Interface --

// Page defines the interface for driving the single logged-in browser tab. It
// is implemented by the browser session and consumed by the authenticator,
// the page operations layer, and the settings applier, which lets those
// components be tested without a live browser.
type Page interface {
	ID() string                                                      // Returns the unique ID of the underlying session.
	Navigate(ctx context.Context, url string) error                  // Loads a URL and waits for the page to stabilize.
	Reload(ctx context.Context) error                                // Refreshes the current page.
	Find(ctx context.Context, selector string) (bool, error)         // Reports whether any element matches right now.
	Visible(ctx context.Context, selector string) (bool, error)      // Reports whether the first match is rendered.
	WaitVisible(ctx context.Context, selector string) error          // Blocks until the selector is visible.
	WaitHidden(ctx context.Context, selector string) error           // Blocks until the selector is gone or hidden.
	WaitReady(ctx context.Context, selector string) error            // Blocks until the selector exists in the DOM.
	Click(ctx context.Context, selector string) error                // Scrolls into view and clicks.
	Type(ctx context.Context, selector string, text string) error    // Clears the field and types the text.
	Text(ctx context.Context, selector string) (string, error)       // Extracts the rendered text of the first match.
	Value(ctx context.Context, selector string) (string, error)      // Reads the value property of a form field.
	Checked(ctx context.Context, selector string) (bool, error)      // Reads the checked property of a checkbox.
	SetChecked(ctx context.Context, selector string, on bool) error  // Clicks the checkbox if its state differs.
	Evaluate(ctx context.Context, script string, out any) error      // Runs a JS expression, unmarshaling into out.
	Cookies(ctx context.Context) ([]Cookie, error)                   // Returns all cookies visible to the page.
	CurrentURL(ctx context.Context) (string, error)                  // Reports the page's location.
	OuterHTML(ctx context.Context) (string, error)                   // Captures the serialized DOM.
	Diagnose(ctx context.Context, step string) PageSummary           // Logs and snapshots the page shape on mismatch.
	MarkAuthenticated(ok bool)                                       // Records the authentication state.
	Authenticated() bool                                             // Reports whether the page is logged in.
	Stale(threshold time.Duration, now time.Time) bool               // Reports whether the session idled past threshold.
}
