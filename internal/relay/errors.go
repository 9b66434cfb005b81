package relay

import (
	"fmt"
	"net/http"
	"strings"
)

// Kind classifies a relay failure.
type Kind string

const (
	KindAuthentication Kind = "authentication"
	KindSerialization  Kind = "serialization"
	KindService        Kind = "service"
	KindUnavailable    Kind = "unavailable"
	KindTimeout        Kind = "timeout"
	KindApplication    Kind = "application"
	KindConnectivity   Kind = "connectivity"
)

const (
	markerAuthFailed    = "Username and Password not accepted"
	markerSerialization = "DatetimeWithNanoseconds"
)

const (
	MsgAuthentication = "SMTP authentication failed. Please check your SMTP credentials in the settings."
	MsgSerialization  = "Template data error. Please try again or contact support."
	MsgService        = "SMTP service error. Please check your configuration."
	MsgUnavailable    = "SMTP service is unavailable. Please try again later."
	MsgTimeout        = "Connection to the SMTP server timed out. Check the host and port or try again later."
	MsgConnectivity   = "Could not reach the SMTP service. Please try again later."
	MsgSendFailed     = "Failed to send email"
	MsgTestFailed     = "Failed to send test email"
)

// Error is a classified relay failure. Message is safe to show to users;
// Detail keeps the raw relay text for logs.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Detail  string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Retryable reports whether a later retry may succeed without changes.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindUnavailable, KindTimeout, KindConnectivity:
		return true
	}
	return false
}

// classifyStatus maps a non-2xx relay response onto an Error.
// body is the raw payload, detail the decoded error text if any.
func classifyStatus(status int, body, detail string) *Error {
	e := &Error{Status: status, Detail: firstNonEmpty(detail, strings.TrimSpace(body))}

	switch {
	case status == http.StatusInternalServerError:
		switch {
		case strings.Contains(body, markerAuthFailed):
			e.Kind, e.Message = KindAuthentication, MsgAuthentication
		case strings.Contains(body, markerSerialization):
			e.Kind, e.Message = KindSerialization, MsgSerialization
		default:
			e.Kind, e.Message = KindService, MsgService
		}
	case status == http.StatusBadGateway:
		e.Kind, e.Message = KindUnavailable, MsgUnavailable
	case status == http.StatusGatewayTimeout:
		e.Kind, e.Message = KindTimeout, MsgTimeout
	default:
		e.Kind = KindService
		e.Message = firstNonEmpty(detail, fmt.Sprintf("SMTP service error: %d", status))
	}

	return e
}

// classifyPayload maps a 2xx response carrying success=false.
func classifyPayload(status int, payloadErr string) *Error {
	e := &Error{Kind: KindApplication, Status: status, Detail: payloadErr}

	switch {
	case strings.Contains(payloadErr, markerAuthFailed):
		e.Kind, e.Message = KindAuthentication, MsgAuthentication
	case strings.Contains(payloadErr, markerSerialization):
		e.Kind, e.Message = KindSerialization, MsgSerialization
	default:
		e.Message = firstNonEmpty(payloadErr, MsgSendFailed)
	}

	return e
}

func timeoutError(err error) *Error {
	return &Error{Kind: KindTimeout, Message: MsgTimeout, Detail: err.Error(), Err: err}
}

func connectivityError(err error) *Error {
	return &Error{Kind: KindConnectivity, Message: MsgConnectivity, Detail: err.Error(), Err: err}
}
