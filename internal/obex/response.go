package obex

import "fmt"

// ResponseCode is an OBEX response status (final bit included).
type ResponseCode byte

const (
	Continue                    ResponseCode = 0x90
	Success                     ResponseCode = 0xA0
	Created                     ResponseCode = 0xA1
	Accepted                    ResponseCode = 0xA2
	MultipleChoices             ResponseCode = 0xB0
	MovedPermanently            ResponseCode = 0xB1
	MovedTemporarily            ResponseCode = 0xB2
	SeeOther                    ResponseCode = 0xB3
	NotModified                 ResponseCode = 0xB4
	UseProxy                    ResponseCode = 0xB5
	BadRequest                  ResponseCode = 0xC0
	Unauthorized                ResponseCode = 0xC1
	Forbidden                   ResponseCode = 0xC3
	NotFound                    ResponseCode = 0xC4
	MethodNotAllowed            ResponseCode = 0xC5
	NotAcceptable               ResponseCode = 0xC6
	ProxyAuthenticationRequired ResponseCode = 0xC7
	RequestTimeOut              ResponseCode = 0xC8
	Conflict                    ResponseCode = 0xC9
	Gone                        ResponseCode = 0xCA
	LengthRequired              ResponseCode = 0xCB
	PreconditionFailed          ResponseCode = 0xCC
	RequestEntityTooLarge       ResponseCode = 0xCD
	RequestURLTooLarge          ResponseCode = 0xCE
	UnsupportedMediaType        ResponseCode = 0xCF
	InternalServerError         ResponseCode = 0xD0
	NotImplemented              ResponseCode = 0xD1
	BadGateway                  ResponseCode = 0xD2
	ServiceUnavailable          ResponseCode = 0xD3
	GatewayTimeout              ResponseCode = 0xD4
	HTTPVersionNotSupported     ResponseCode = 0xD5
	DatabaseFull                ResponseCode = 0xE0
	DatabaseLocked              ResponseCode = 0xE1
)

var responseNames = map[ResponseCode]string{
	Continue:                    "CONTINUE",
	Success:                     "SUCCESS",
	Created:                     "CREATED",
	Accepted:                    "ACCEPTED",
	MultipleChoices:             "MULTIPLE_CHOICES",
	MovedPermanently:            "MOVED_PERMANENTLY",
	MovedTemporarily:            "MOVED_TEMPORARILY",
	SeeOther:                    "SEE_OTHER",
	NotModified:                 "NOT_MODIFIED",
	UseProxy:                    "USE_PROXY",
	BadRequest:                  "BAD_REQUEST",
	Unauthorized:                "UNAUTHORIZED",
	Forbidden:                   "FORBIDDEN",
	NotFound:                    "NOT_FOUND",
	MethodNotAllowed:            "METHOD_NOT_ALLOWED",
	NotAcceptable:               "NOT_ACCEPTABLE",
	ProxyAuthenticationRequired: "PROXY_AUTHENTICATION_REQUIRED",
	RequestTimeOut:              "REQUEST_TIME_OUT",
	Conflict:                    "CONFLICT",
	Gone:                        "GONE",
	LengthRequired:              "LENGTH_REQUIRED",
	PreconditionFailed:          "PRECONDITION_FAILED",
	RequestEntityTooLarge:       "REQUEST_ENTITY_TOO_LARGE",
	RequestURLTooLarge:          "REQUEST_URL_TOO_LARGE",
	UnsupportedMediaType:        "UNSUPPORTED_MEDIA_TYPE",
	InternalServerError:         "INTERNAL_SERVER_ERROR",
	NotImplemented:              "NOT_IMPLEMENTED",
	BadGateway:                  "BAD_GATEWAY",
	ServiceUnavailable:          "SERVICE_UNAVAILABLE",
	GatewayTimeout:              "GATEWAY_TIMEOUT",
	HTTPVersionNotSupported:     "HTTP_VERSION_NOT_SUPPORTED",
	DatabaseFull:                "DATABASE_FULL",
	DatabaseLocked:              "DATABASE_LOCKED",
}

func (c ResponseCode) String() string {
	if s, ok := responseNames[c]; ok {
		return s
	}
	return fmt.Sprintf("RESPONSE(0x%02X)", byte(c))
}

// Known reports whether c is one of the codes defined by OBEX.
func (c ResponseCode) Known() bool {
	_, ok := responseNames[c]
	return ok
}

// Response is a parsed OBEX response. It does not alias the input buffer.
type Response struct {
	Code   ResponseCode
	Length int

	// Set only for responses to CONNECT.
	Version       byte
	Flags         byte
	MaxPacketSize int

	headers map[HeaderID]Header
}

// Header returns the header with the given id, if present.
func (r *Response) Header(id HeaderID) (Header, bool) {
	h, ok := r.headers[id]
	return h, ok
}

// ParseResponse decodes a response to any request other than CONNECT.
func ParseResponse(data []byte) (*Response, error) {
	return parseResponse(data, false)
}

// ParseConnectResponse decodes a response to CONNECT, which carries version,
// flags and maximum packet size ahead of its headers.
func ParseConnectResponse(data []byte) (*Response, error) {
	return parseResponse(data, true)
}

func parseResponse(data []byte, connect bool) (*Response, error) {
	if len(data) < 3 {
		return nil, fmt.Errorf("%w: response too short: %d bytes (need at least 3)", ErrMalformed, len(data))
	}
	resp := &Response{
		Code:    ResponseCode(data[0]),
		Length:  Length(data[1:3]),
		headers: make(map[HeaderID]Header),
	}
	if resp.Length < 3 || resp.Length > len(data) {
		return nil, fmt.Errorf("%w: declared length %d, have %d bytes", ErrMalformed, resp.Length, len(data))
	}

	data = data[:resp.Length]
	index := 3

	if connect && len(data) > index {
		if len(data) < index+4 {
			return nil, fmt.Errorf("%w: truncated CONNECT response fields", ErrMalformed)
		}
		resp.Version = data[index]
		resp.Flags = data[index+1]
		resp.MaxPacketSize = Length(data[index+2 : index+4])
		index += 4
	}

	for index < len(data) {
		h, n, err := decodeHeader(data[index:])
		if err != nil {
			return nil, err
		}
		resp.headers[h.id] = h
		index += n
	}
	return resp, nil
}
