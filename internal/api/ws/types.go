package ws

// Message is a client request. Type selects the operation:
// load, exec, html, snapshot or ping.
type Message struct {
	Type string `json:"type"`

	// load
	HTML          string `json:"html,omitempty"`
	URL           string `json:"url,omitempty"`
	PageURL       string `json:"page_url,omitempty"`
	ArchiveOrigin string `json:"archive_origin,omitempty"`
	ServerBase    string `json:"server_base,omitempty"`
	Bootstrap     string `json:"bootstrap,omitempty"`
	RunScripts    bool   `json:"run_scripts,omitempty"`

	// exec
	Script string `json:"script,omitempty"`
}

// Message types sent by the server
const (
	TypeSystem   = "system"
	TypeLoaded   = "loaded"
	TypeResult   = "result"
	TypeHTML     = "html"
	TypeSnapshot = "snapshot"
	TypePong     = "pong"
	TypeError    = "error"
)
