package http

import (
	"time"

	"github.com/GriffinCanCode/replaypatch/internal/providers/browser/sandbox"
	"github.com/GriffinCanCode/replaypatch/internal/rewrite"
)

// PatchRequest is the JSON body of POST /v1/patch. Exactly one of HTML and
// URL is set.
type PatchRequest struct {
	HTML        string `json:"html"`
	URL         string `json:"url"`
	ContentType string `json:"content_type"`
	PageURL     string `json:"page_url"`

	ArchiveOrigin string `json:"archive_origin"`
	ServerBase    string `json:"server_base"`
	Bootstrap     string `json:"bootstrap"`

	RunScripts *bool `json:"run_scripts"`
	Report     bool  `json:"report"`
	Sanitize   bool  `json:"sanitize"`
}

// PatchQuery is the query string of GET /v1/patch and POST /v1/patch/html
type PatchQuery struct {
	URL           string `form:"url"`
	PageURL       string `form:"page_url"`
	ArchiveOrigin string `form:"archive_origin"`
	ServerBase    string `form:"server_base"`
	RunScripts    *bool  `form:"run_scripts"`
	Report        bool   `form:"report"`
}

// PatchResponse is the patched page
type PatchResponse struct {
	HTML     string          `json:"html"`
	Title    string          `json:"title"`
	PageURL  string          `json:"page_url"`
	Archive  rewrite.Archive `json:"archive"`
	Frames   int             `json:"frames"`
	Records  int             `json:"records"`
	Console  []ConsoleEntry  `json:"console"`
	Rewrites []rewrite.Entry `json:"rewrites,omitempty"`
	Snapshot string          `json:"snapshot,omitempty"`
}

// ConsoleEntry is one line of page console output
type ConsoleEntry struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
}

func consoleEntries(logs []sandbox.LogEntry) []ConsoleEntry {
	out := make([]ConsoleEntry, len(logs))
	for i, l := range logs {
		out[i] = ConsoleEntry{Level: l.Level, Message: l.Message, Time: l.Time}
	}
	return out
}
