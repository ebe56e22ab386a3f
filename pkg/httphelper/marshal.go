// Package httphelper contains the small HTTP plumbing shared by all endpoint
// handlers: form decoding, JSON marshaling and URL-encoding of responses.
package httphelper

import (
	"encoding/json"
	"net/http"
	"net/url"
)

// Decoder decodes form values into a request struct using its schema tags.
type Decoder interface {
	Decode(dst any, src map[string][]string) error
}

// Encoder encodes a response struct into form values using its schema tags.
type Encoder interface {
	Encode(src any, dst map[string][]string) error
}

func MarshalJSON(w http.ResponseWriter, i any) {
	MarshalJSONWithStatus(w, i, http.StatusOK)
}

func MarshalJSONWithStatus(w http.ResponseWriter, i any, status int) {
	w.Header().Set("content-type", "application/json")
	w.WriteHeader(status)
	if i == nil || (i == http.NoBody) {
		return
	}
	err := json.NewEncoder(w).Encode(i)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// URLEncodeParams encodes a response into URL values for use as
// query or fragment parameters of a redirect.
func URLEncodeParams(resp any, encoder Encoder) (url.Values, error) {
	values := make(map[string][]string)
	err := encoder.Encode(resp, values)
	if err != nil {
		return nil, err
	}
	return values, nil
}
