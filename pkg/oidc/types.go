package oidc

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
)

// Audience handles the `aud` claim, which may be a single string or an array of strings.
type Audience []string

func (a *Audience) UnmarshalJSON(text []byte) error {
	var i any
	err := json.Unmarshal(text, &i)
	if err != nil {
		return err
	}
	switch aud := i.(type) {
	case []any:
		*a = make([]string, len(aud))
		for i, audience := range aud {
			s, ok := audience.(string)
			if !ok {
				return ErrMalformedAudience
			}
			(*a)[i] = s
		}
	case string:
		*a = []string{aud}
	default:
		return ErrMalformedAudience
	}
	return nil
}

// SpaceDelimitedArray is an array of strings represented
// as a single space-delimited string on the wire.
type SpaceDelimitedArray []string

func (s SpaceDelimitedArray) String() string {
	return strings.Join(s, " ")
}

func (s *SpaceDelimitedArray) UnmarshalText(text []byte) error {
	*s = strings.Fields(string(text))
	return nil
}

func (s SpaceDelimitedArray) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SpaceDelimitedArray) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	*s = strings.Fields(str)
	return nil
}

func (s SpaceDelimitedArray) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

type Scopes = SpaceDelimitedArray

// Locales parses the `ui_locales` parameter, silently dropping
// tags that are not valid BCP 47 language tags.
type Locales []language.Tag

func (l *Locales) UnmarshalText(text []byte) error {
	for _, value := range strings.Fields(string(text)) {
		tag, err := language.Parse(value)
		if err == nil {
			*l = append(*l, tag)
		}
	}
	return nil
}

// Time is a Unix timestamp in JSON, as used in JWT claims (exp, nbf, iat).
// The zero value marks an absent claim and is dropped by omitempty.
type Time int64

func (t *Time) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	i, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return ErrMalformedTime
	}
	*t = Time(int64(i))
	return nil
}

func (t Time) AsTime() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return time.Unix(int64(t), 0)
}

func FromTime(t time.Time) Time {
	if t.IsZero() {
		return 0
	}
	return Time(t.Unix())
}
