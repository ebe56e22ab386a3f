package oidc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeResponseType(t *testing.T) {
	for _, tt := range []struct {
		in   ResponseType
		want ResponseType
	}{
		{"code", "code"},
		{"code id_token", "code id_token"},
		{"id_token code", "code id_token"},
		{"token id_token code", "code id_token token"},
		{"  code   id_token ", "code id_token"},
	} {
		assert.Equal(t, tt.want, NormalizeResponseType(tt.in), "input %q", tt.in)
	}
}

func TestGrantTypeForResponseType(t *testing.T) {
	for _, tt := range []struct {
		responseType ResponseType
		grantType    GrantType
		ok           bool
	}{
		{ResponseTypeCode, GrantTypeCode, true},
		{ResponseTypeCodeIDToken, GrantTypeHybrid, true},
		{"id_token code", GrantTypeHybrid, true},
		{ResponseTypeIDTokenOnly, GrantTypeImplicit, true},
		{"token code", "", false},
	} {
		grantType, ok := GrantTypeForResponseType(tt.responseType)
		assert.Equal(t, tt.ok, ok, "input %q", tt.responseType)
		if ok {
			assert.Equal(t, tt.grantType, grantType, "input %q", tt.responseType)
		}
	}
}

func TestResponseModesForGrantType(t *testing.T) {
	assert.Equal(t, ResponseModeQuery, ResponseModesForGrantType(GrantTypeCode)[0])
	assert.Equal(t, ResponseModeFragment, ResponseModesForGrantType(GrantTypeHybrid)[0])
	assert.Equal(t, ResponseModeFragment, ResponseModesForGrantType(GrantTypeImplicit)[0])
}

func TestResponseTypeRequiresIDToken(t *testing.T) {
	assert.False(t, ResponseTypeCode.RequiresIDToken())
	assert.True(t, ResponseTypeCodeIDToken.RequiresIDToken())
	assert.True(t, ResponseTypeIDTokenOnly.RequiresIDToken())
}

func TestACRRequestRequestedValues(t *testing.T) {
	var nilRequest *ACRRequest
	assert.Nil(t, nilRequest.RequestedValues())

	single := &ACRRequest{Essential: true, Value: ACRLoA3}
	assert.Equal(t, []string{ACRLoA3}, single.RequestedValues())

	set := &ACRRequest{Values: []string{ACRLoA2, ACRLoA3}}
	assert.Equal(t, []string{ACRLoA2, ACRLoA3}, set.RequestedValues())

	// value wins when both are present
	both := &ACRRequest{Value: ACRLoA2, Values: []string{ACRLoA3}}
	assert.Equal(t, []string{ACRLoA2}, both.RequestedValues())
}

func TestRequestObjectRecordsSignatureAlg(t *testing.T) {
	var signed SignedToken = new(RequestObject)
	signed.SetSignatureAlg("PS256")
	assert.Equal(t, "PS256", signed.(*RequestObject).SignatureAlg)
}

func TestRequestObjectClaimsRoundTrip(t *testing.T) {
	raw := []byte(`{
		"iss": "client-1",
		"aud": "https://op.local",
		"response_type": "code",
		"scope": "openid bank:accounts.basic:read",
		"claims": {
			"sharing_duration": 7776000,
			"cdr_arrangement_id": "arr-1",
			"id_token": {"acr": {"essential": true, "value": "urn:cds.au:cdr:3"}}
		}
	}`)
	var ro RequestObject
	require.NoError(t, json.Unmarshal(raw, &ro))
	assert.Equal(t, Audience{"https://op.local"}, ro.Audience)
	assert.Equal(t, Scopes{"openid", "bank:accounts.basic:read"}, ro.Scopes)
	require.NotNil(t, ro.Claims)
	require.NotNil(t, ro.Claims.SharingDuration)
	assert.Equal(t, int64(7776000), *ro.Claims.SharingDuration)
	assert.Equal(t, "arr-1", ro.Claims.CDRArrangementID)
	assert.Equal(t, []string{ACRLoA3}, ro.Claims.IDToken.ACR.RequestedValues())
}
