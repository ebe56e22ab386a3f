package op

// ValidationCheck identifies the validation stage an outcome belongs to.
// It routes audit events only and is deliberately decoupled from the
// OAuth error code returned to the caller.
type ValidationCheck string

const (
	CheckUnknown ValidationCheck = ""

	// client authentication
	CheckSSLClientCertCNNotFound        ValidationCheck = "ssl_client_cert_cn_not_found"
	CheckSSLClientCertThumbprintMissing ValidationCheck = "ssl_client_cert_thumbprint_missing"
	CheckNoKeysToValidateAssertion      ValidationCheck = "no_keys_to_validate_client_assertion"
	CheckClientAssertionNotFound        ValidationCheck = "client_assertion_not_found"
	CheckClientAssertionTooLong         ValidationCheck = "client_assertion_too_long"
	CheckClientAssertionInvalid         ValidationCheck = "client_assertion_invalid"
	CheckClientAssertionJTIMissing      ValidationCheck = "client_assertion_jti_missing"
	CheckClientAssertionReplayed        ValidationCheck = "client_assertion_replayed"
	CheckClientAssertionSubject         ValidationCheck = "client_assertion_subject_invalid"
	CheckClientAssertionAlgorithm       ValidationCheck = "client_assertion_algorithm_not_allowed"

	// request object / authorize parameters
	CheckRequestObjectMissing   ValidationCheck = "request_object_missing"
	CheckRequestObjectMalformed ValidationCheck = "request_object_malformed"
	CheckRequestObjectSignature ValidationCheck = "request_object_signature_invalid"
	CheckClientNotFound         ValidationCheck = "client_not_found"
	CheckRedirectURI            ValidationCheck = "redirect_uri_invalid"
	CheckResponseType           ValidationCheck = "response_type_invalid"
	CheckResponseMode           ValidationCheck = "response_mode_invalid"
	CheckGrantType              ValidationCheck = "grant_type_not_allowed"
	CheckPKCE                   ValidationCheck = "pkce_invalid"
	CheckScope                  ValidationCheck = "scope_invalid"
	CheckOptionalParameters     ValidationCheck = "optional_parameter_invalid"
	CheckProfileClaims          ValidationCheck = "profile_claims_invalid"
	CheckSharingDuration        ValidationCheck = "sharing_duration_invalid"
	CheckArrangementOwnership   ValidationCheck = "arrangement_ownership_invalid"
	CheckACRValues              ValidationCheck = "acr_values_invalid"
	CheckSoftwareProductStatus  ValidationCheck = "software_product_status_invalid"
	CheckCustomValidation       ValidationCheck = "custom_validation_failed"

	// secondary flows
	CheckArrangementRevocation ValidationCheck = "arrangement_revocation_invalid"
	CheckTokenRevocation       ValidationCheck = "token_revocation_invalid"
	CheckIntrospection         ValidationCheck = "introspection_invalid"
)

// EventKind is the audit event category raised through the EventSink.
type EventKind string

const (
	EventMTLSValidated            EventKind = "mtls_credential_validated"
	EventMTLSValidationFailed     EventKind = "mtls_credential_validation_failed"
	EventClientAssertionValidated EventKind = "client_assertion_validated"
	EventClientAuthFailed         EventKind = "client_authentication_failed"

	EventAuthorizeRequestValidated EventKind = "authorize_request_validated"
	EventAuthorizeRequestRejected  EventKind = "authorize_request_rejected"
	EventPushedAuthRequestAccepted EventKind = "pushed_authorization_request_accepted"
	EventPushedAuthRequestRejected EventKind = "pushed_authorization_request_rejected"

	EventArrangementRevoked          EventKind = "arrangement_revoked"
	EventArrangementRevocationFailed EventKind = "arrangement_revocation_failed"
	EventArrangementOwnershipDenied  EventKind = "arrangement_ownership_denied"
	EventTokenRevoked                EventKind = "token_revoked"
	EventTokenRevocationFailed       EventKind = "token_revocation_failed"
	EventTokenIntrospected           EventKind = "token_introspected"
	EventIntrospectionFailed         EventKind = "token_introspection_failed"
)

// EventSink receives audit events. Implementations must treat Raise as
// fire-and-forget: errors are the sink's problem, never the request's.
type EventSink interface {
	Raise(kind EventKind, check ValidationCheck)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(kind EventKind, check ValidationCheck)

func (f EventSinkFunc) Raise(kind EventKind, check ValidationCheck) {
	f(kind, check)
}
