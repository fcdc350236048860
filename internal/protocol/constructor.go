package protocol

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Frame constructors for the client-to-server direction.

const (
	// AcceptVersions is offered in CONNECT.
	AcceptVersions = "1.1,1.0"

	// NoHeartBeat disables STOMP-level heart-beating. Liveness is tracked on
	// the envelope layer instead.
	NoHeartBeat = "0,0"

	contentTypeJSON = "application/json;charset=UTF-8"
)

// NewConnect builds the CONNECT frame. The server requires the access token
// as a header in addition to the URL query parameter.
func NewConnect(accessToken string) *Frame {
	return &Frame{
		Command: CommandConnect,
		Headers: Headers{
			HeaderAcceptVersion: AcceptVersions,
			HeaderHeartBeat:     NoHeartBeat,
			HeaderAccessToken:   accessToken,
		},
	}
}

// NewSubscribe builds a SUBSCRIBE frame.
func NewSubscribe(id, destination string) *Frame {
	return &Frame{
		Command: CommandSubscribe,
		Headers: Headers{
			HeaderID:          id,
			HeaderDestination: destination,
		},
	}
}

// NewSend builds a SEND frame with a JSON body and a matching content-length.
func NewSend(destination string, payload interface{}) (*Frame, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", destination, err)
	}
	return &Frame{
		Command: CommandSend,
		Headers: Headers{
			HeaderDestination:   destination,
			HeaderContentType:   contentTypeJSON,
			HeaderContentLength: strconv.Itoa(len(body)),
		},
		Body: string(body),
	}, nil
}

// NewDisconnect builds a DISCONNECT frame. An empty receipt omits the header.
func NewDisconnect(receipt string) *Frame {
	f := &Frame{Command: CommandDisconnect, Headers: Headers{}}
	if receipt != "" {
		f.Headers[HeaderReceipt] = receipt
	}
	return f
}
