package op

import (
	"time"

	"github.com/datarightlab/fapi-op/pkg/oidc"
)

// FAPIComplianceLevel orders the profile levels a data holder can run at.
// PKCE becomes mandatory at FAPI1Advanced and above.
type FAPIComplianceLevel int

const (
	FAPI1Baseline FAPIComplianceLevel = iota
	FAPI1Advanced
	FAPI2
)

const (
	defaultMaxAssertionLength = 4096
	defaultMaxParamLength     = 2048
	defaultClockSkew          = time.Minute
	defaultPARLifetime        = 90 * time.Second
)

// Config carries the profile constraints the validators enforce.
type Config struct {
	// Issuer of this authorization server, accepted as assertion audience
	// alongside ValidAudiences.
	Issuer string

	// ValidAudiences are the additional audiences accepted in client
	// assertions (e.g. the token and PAR endpoint URLs).
	ValidAudiences []string

	// SupportedSignAlgs is the signing algorithm allow-list for client
	// assertions and request objects. Absence or mismatch fails closed.
	SupportedSignAlgs []string

	// SupportedACRValues are the recognized assurance levels.
	SupportedACRValues []string

	// SupportedScopes are all scopes this data holder can grant.
	SupportedScopes []string

	// ComplianceLevel is the FAPI level the server runs at.
	ComplianceLevel FAPIComplianceLevel
	// PKCERequiredLevel is the level at or above which code_challenge is mandatory.
	PKCERequiredLevel FAPIComplianceLevel

	// MaxAssertionLength bounds client assertions and request objects.
	MaxAssertionLength int
	// MaxParamLength bounds individual optional parameters.
	MaxParamLength int

	// ClockSkew is the tolerance applied to exp, nbf and iat checks.
	ClockSkew time.Duration

	// PARLifetime is the TTL of a pushed authorization request_uri.
	PARLifetime time.Duration

	// SharingDurationCap clamps the requested sharing_duration, in seconds.
	SharingDurationCap int64
}

// DefaultSupportedSignAlgs is the profile's signing algorithm allow-list.
// HS* is excluded by design: symmetric signatures cannot prove key possession.
var DefaultSupportedSignAlgs = []string{"PS256", "ES256"}

// DefaultSupportedACRValues are the two recognized levels of assurance.
var DefaultSupportedACRValues = []string{oidc.ACRLoA2, oidc.ACRLoA3}

// NewConfig returns a Config with the profile defaults applied.
func NewConfig(issuer string) *Config {
	return &Config{
		Issuer:             issuer,
		SupportedSignAlgs:  DefaultSupportedSignAlgs,
		SupportedACRValues: DefaultSupportedACRValues,
		ComplianceLevel:    FAPI1Advanced,
		PKCERequiredLevel:  FAPI1Advanced,
		MaxAssertionLength: defaultMaxAssertionLength,
		MaxParamLength:     defaultMaxParamLength,
		ClockSkew:          defaultClockSkew,
		PARLifetime:        defaultPARLifetime,
		SharingDurationCap: oidc.MaxSharingDuration,
	}
}

func (c *Config) maxAssertionLength() int {
	if c.MaxAssertionLength <= 0 {
		return defaultMaxAssertionLength
	}
	return c.MaxAssertionLength
}

func (c *Config) maxParamLength() int {
	if c.MaxParamLength <= 0 {
		return defaultMaxParamLength
	}
	return c.MaxParamLength
}

func (c *Config) clockSkew() time.Duration {
	if c.ClockSkew <= 0 {
		return defaultClockSkew
	}
	return c.ClockSkew
}

func (c *Config) parLifetime() time.Duration {
	if c.PARLifetime <= 0 {
		return defaultPARLifetime
	}
	return c.PARLifetime
}

func (c *Config) sharingDurationCap() int64 {
	if c.SharingDurationCap <= 0 {
		return oidc.MaxSharingDuration
	}
	return c.SharingDurationCap
}

func (c *Config) audiences() []string {
	return append([]string{c.Issuer}, c.ValidAudiences...)
}

// pkceRequired reports whether the running compliance level mandates PKCE.
func (c *Config) pkceRequired() bool {
	return c.ComplianceLevel >= c.PKCERequiredLevel
}
