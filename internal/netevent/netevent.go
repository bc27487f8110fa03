// Package netevent defines the vocabulary capture sources use to report
// network activity to the monitor.
//
// A request produces, in order: one KindRequest, at most one KindResponse and
// exactly one of KindFinished or KindFailed. Redirect hops are separate
// requests; the follow-up names the hop it came from in RequestInfo.RedirectFrom.
package netevent

import (
	"net/http"
	"time"
)

type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindFinished Kind = "finished"
	KindFailed   Kind = "failed"
)

// Cause is what initiated a request, as a panel's "Type" column reports it.
type Cause string

const (
	CauseDocument   Cause = "document"
	CauseXHR        Cause = "xhr"
	CauseFetch      Cause = "fetch"
	CauseBeacon     Cause = "beacon"
	CauseImage      Cause = "img"
	CauseScript     Cause = "script"
	CauseStylesheet Cause = "stylesheet"
	CauseFont       Cause = "font"
	CauseMedia      Cause = "media"
	CauseWebSocket  Cause = "websocket"
	CauseOther      Cause = "other"
)

// Event is a single notification from a capture source. Exactly one of the
// payload pointers matching Kind is set.
type Event struct {
	Kind    Kind
	ActorID string
	Time    time.Time

	Request  *RequestInfo
	Response *ResponseInfo
	Finished *FinishedInfo
	Failed   *FailedInfo
}

type RequestInfo struct {
	Method   string
	URL      string
	Headers  http.Header
	Cause    Cause
	IsXHR    bool
	BodySize int64

	// RedirectFrom is the actor of the hop whose 3xx response produced this
	// request. Empty when the source cannot tell.
	RedirectFrom string
}

type ResponseInfo struct {
	Status      int
	StatusText  string
	HTTPVersion string
	Headers     http.Header
	MimeType    string
	RemoteAddr  string
	FromCache   bool
	Security    SecurityInfo
}

// SecurityInfo is the raw transport facts a classifier turns into a state.
type SecurityInfo struct {
	Scheme          string `json:"scheme"`
	Host            string `json:"host,omitempty"`
	TLSVersion      uint16 `json:"tls_version,omitempty"`
	CipherSuite     uint16 `json:"cipher_suite,omitempty"`
	ProtocolName    string `json:"protocol,omitempty"`
	CipherName      string `json:"cipher,omitempty"`
	ServerName      string `json:"server_name,omitempty"`
	PeerCertSubject string `json:"peer_cert_subject,omitempty"`
	PeerCertIssuer  string `json:"peer_cert_issuer,omitempty"`
	HandshakeError  string `json:"handshake_error,omitempty"`

	// Reported is a state a browser already computed (CDP securityState).
	Reported string `json:"reported,omitempty"`
}

type FinishedInfo struct {
	TransferredSize int64
	ContentSize     int64
}

type FailedInfo struct {
	ErrorText string
	Canceled  bool
	Security  *SecurityInfo
}

// Sink receives events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(ev Event)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Event)

func (f SinkFunc) Emit(ev Event) { f(ev) }

// CauseFromResourceType maps a fetch destination or resource type string
// ("ping", "xhr", "image", ...) to a Cause.
func CauseFromResourceType(t string) Cause {
	switch t {
	case "document", "Document":
		return CauseDocument
	case "xhr", "XHR":
		return CauseXHR
	case "fetch", "Fetch":
		return CauseFetch
	case "ping", "Ping", "beacon":
		return CauseBeacon
	case "image", "Image", "img":
		return CauseImage
	case "script", "Script":
		return CauseScript
	case "stylesheet", "Stylesheet":
		return CauseStylesheet
	case "font", "Font":
		return CauseFont
	case "media", "Media":
		return CauseMedia
	case "websocket", "WebSocket":
		return CauseWebSocket
	default:
		return CauseOther
	}
}
