package pipeline

import (
	"errors"
	"fmt"
	"net/url"
)

// ErrContract is wrapped by errors returned when a port is handed a Source
// or Destination variant it does not understand, or when a unit of work is
// asked for a capability its port lacks. It signals a programming mistake.
var ErrContract = errors.New("contract violation")

// ConfigurationError reports a unit of work or ETL call that was set up
// wrongly, e.g. a scope opened with neither source nor destination. It is
// raised before any I/O happens.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Msg
}

// TransportError reports a failed remote call: a non-success HTTP status, a
// connection failure, or an object storage failure.
type TransportError struct {
	Op         string // e.g. "http post", "s3 get"
	Target     string // log-safe rendering of the URL or bucket/key
	StatusCode int    // set for HTTP status failures
	Err        error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s %s", e.Op, e.Target)
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: status %d", msg, e.StatusCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// CodecError reports malformed JSON, a failed decompression, or a payload
// that does not have the expected shape.
type CodecError struct {
	Op  string
	Err error
}

func (e *CodecError) Error() string {
	return fmt.Sprintf("codec %s: %v", e.Op, e.Err)
}

func (e *CodecError) Unwrap() error { return e.Err }

// IsConfiguration reports whether err is or wraps a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsTransport reports whether err is or wraps a TransportError.
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// IsCodec reports whether err is or wraps a CodecError.
func IsCodec(err error) bool {
	var target *CodecError
	return errors.As(err, &target)
}

// redactURL keeps scheme and host only. BPS keys travel in the path.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "<url>"
	}
	return u.Scheme + "://" + u.Host
}

// RedactURL is the exported form of the log-safe URL rendering.
func RedactURL(raw string) string { return redactURL(raw) }
