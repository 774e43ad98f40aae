package livefrag

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

// ResponseKind tags the parsed form of a server response. Shape detection
// is an explicit tagged-union step with a documented priority order:
//
//  1. An HTTP redirect status (3xx with a Location header) parses as
//     ResponseRedirect regardless of body - the engine navigates the
//     whole page rather than treating it as content.
//  2. A JSON content type parses the body as the {"html": ...} envelope;
//     a JSON body without the required "html" field is an envelope error,
//     never silently coerced.
//  3. Anything else is raw HTML with HasMore false.
type ResponseKind int

const (
	// ResponseContent carries HTML to install in the container.
	ResponseContent ResponseKind = iota

	// ResponseRedirect instructs a full page navigation.
	ResponseRedirect
)

// Response is the parsed server response consumed by the load pipeline.
type Response struct {
	Kind     ResponseKind
	HTML     string
	HasMore  bool
	Location string // redirect target, set only for ResponseRedirect
}

// envelope is the JSON wire shape. Unknown fields are ignored.
type envelope struct {
	HTML    *string `json:"html"`
	HasMore bool    `json:"has_more"`
}

// ParseResponse classifies an HTTP response into a Response or an error.
// status and contentType come from the response head; body is the full
// payload. Callers pass redirect targets through location.
func ParseResponse(status int, contentType string, body []byte, location string) (*Response, error) {
	if status >= 300 && status < 400 {
		if location == "" {
			return nil, fmt.Errorf("%w: redirect status %d without location", ErrEnvelope, status)
		}
		return &Response{Kind: ResponseRedirect, Location: location}, nil
	}

	if isJSON(contentType) {
		var env envelope
		if err := json.Unmarshal(body, &env); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEnvelope, err)
		}
		if env.HTML == nil {
			return nil, fmt.Errorf("%w: missing required html field", ErrEnvelope)
		}
		return &Response{Kind: ResponseContent, HTML: *env.HTML, HasMore: env.HasMore}, nil
	}

	return &Response{Kind: ResponseContent, HTML: string(body)}, nil
}

// parseHTTPResponse adapts an *http.Response for ParseResponse.
func parseHTTPResponse(resp *http.Response, body []byte) (*Response, error) {
	return ParseResponse(resp.StatusCode, resp.Header.Get("Content-Type"), body, resp.Header.Get("Location"))
}

func isJSON(contentType string) bool {
	mt, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mt = contentType
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}
