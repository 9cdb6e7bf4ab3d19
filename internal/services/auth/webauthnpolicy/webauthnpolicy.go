// Package webauthnpolicy holds the per-realm WebAuthn registration policy.
//
// The policy is realm configuration passed through to storage; no ceremony
// logic lives here. Values are validated against the WebAuthn protocol
// vocabularies before they are persisted, so the admin API can never store
// a policy a relying party would reject.
package webauthnpolicy

import (
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	apperrors "github.com/realmgate/realmgate/internal/platform/errors"
)

// Kind distinguishes the two policy namespaces a realm carries.
type Kind string

const (
	// KindTwoFactor is the policy for WebAuthn as a second factor.
	KindTwoFactor Kind = "webauthn-policy"
	// KindPasswordless is the policy for passwordless WebAuthn login.
	KindPasswordless Kind = "webauthn-policy-passwordless"
)

// Valid reports whether k names a known policy namespace.
func (k Kind) Valid() bool {
	return k == KindTwoFactor || k == KindPasswordless
}

// Policy is the per-realm WebAuthn registration configuration.
//
// Empty string values mean "not specified": the relying party omits the
// corresponding option and lets the authenticator decide.
type Policy struct {
	RPEntityName                    string   `json:"rpEntityName"`
	SignatureAlgorithms             []string `json:"signatureAlgorithms"`
	RPID                            string   `json:"rpId"`
	AttestationConveyancePreference string   `json:"attestationConveyancePreference"`
	AuthenticatorAttachment         string   `json:"authenticatorAttachment"`
	RequireResidentKey              string   `json:"requireResidentKey"`
	UserVerificationRequirement     string   `json:"userVerificationRequirement"`
	CreateTimeout                   int      `json:"createTimeout"`
	AvoidSameAuthenticatorRegister  bool     `json:"avoidSameAuthenticatorRegister"`
	AcceptableAaguids               []string `json:"acceptableAaguids"`
	ExtraOrigins                    []string `json:"extraOrigins"`
}

// Default is the policy a realm starts with before an admin edits it.
func Default() Policy {
	return Policy{
		RPEntityName:        "realmgate",
		SignatureAlgorithms: []string{"ES256"},
	}
}

// signatureAlgorithms maps the policy's algorithm names to their COSE
// identifiers.
var signatureAlgorithms = map[string]webauthncose.COSEAlgorithmIdentifier{
	"ES256": webauthncose.AlgES256,
	"ES384": webauthncose.AlgES384,
	"ES512": webauthncose.AlgES512,
	"RS256": webauthncose.AlgRS256,
	"RS384": webauthncose.AlgRS384,
	"RS512": webauthncose.AlgRS512,
	"RS1":   webauthncose.AlgRS1,
	"EdDSA": webauthncose.AlgEdDSA,
}

var conveyancePreferences = map[string]protocol.ConveyancePreference{
	"none":       protocol.PreferNoAttestation,
	"indirect":   protocol.PreferIndirectAttestation,
	"direct":     protocol.PreferDirectAttestation,
	"enterprise": protocol.PreferEnterpriseAttestation,
}

var authenticatorAttachments = map[string]protocol.AuthenticatorAttachment{
	"platform":       protocol.Platform,
	"cross-platform": protocol.CrossPlatform,
}

var userVerificationRequirements = map[string]protocol.UserVerificationRequirement{
	"required":    protocol.VerificationRequired,
	"preferred":   protocol.VerificationPreferred,
	"discouraged": protocol.VerificationDiscouraged,
}

var residentKeyRequirements = map[string]protocol.ResidentKeyRequirement{
	"Yes": protocol.ResidentKeyRequirementRequired,
	"No":  protocol.ResidentKeyRequirementDiscouraged,
}

func invalidValue(field, value string) error {
	return apperrors.WithMetadata(apperrors.CodePolicyInvalidValue, "invalid webauthn policy value", map[string]string{
		"field": field,
		"value": value,
	})
}

// Validate checks every enumerated field against the protocol vocabulary.
func (p Policy) Validate() error {
	for _, alg := range p.SignatureAlgorithms {
		if _, ok := signatureAlgorithms[alg]; !ok {
			return invalidValue("signatureAlgorithms", alg)
		}
	}
	if p.AttestationConveyancePreference != "" {
		if _, ok := conveyancePreferences[p.AttestationConveyancePreference]; !ok {
			return invalidValue("attestationConveyancePreference", p.AttestationConveyancePreference)
		}
	}
	if p.AuthenticatorAttachment != "" {
		if _, ok := authenticatorAttachments[p.AuthenticatorAttachment]; !ok {
			return invalidValue("authenticatorAttachment", p.AuthenticatorAttachment)
		}
	}
	if p.RequireResidentKey != "" {
		if _, ok := residentKeyRequirements[p.RequireResidentKey]; !ok {
			return invalidValue("requireResidentKey", p.RequireResidentKey)
		}
	}
	if p.UserVerificationRequirement != "" {
		if _, ok := userVerificationRequirements[p.UserVerificationRequirement]; !ok {
			return invalidValue("userVerificationRequirement", p.UserVerificationRequirement)
		}
	}
	if p.CreateTimeout < 0 {
		return invalidValue("createTimeout", "negative")
	}
	return nil
}

// COSEAlgorithms returns the policy's signature algorithms as COSE
// identifiers, in policy order. Validate must have passed.
func (p Policy) COSEAlgorithms() []webauthncose.COSEAlgorithmIdentifier {
	algorithms := make([]webauthncose.COSEAlgorithmIdentifier, 0, len(p.SignatureAlgorithms))
	for _, alg := range p.SignatureAlgorithms {
		if identifier, ok := signatureAlgorithms[alg]; ok {
			algorithms = append(algorithms, identifier)
		}
	}
	return algorithms
}

// AuthenticatorSelection assembles the policy's registration selection
// criteria in protocol terms. Unspecified fields stay zero so they are
// omitted from the ceremony options.
func (p Policy) AuthenticatorSelection() protocol.AuthenticatorSelection {
	selection := protocol.AuthenticatorSelection{}
	if attachment, ok := authenticatorAttachments[p.AuthenticatorAttachment]; ok {
		selection.AuthenticatorAttachment = attachment
	}
	if verification, ok := userVerificationRequirements[p.UserVerificationRequirement]; ok {
		selection.UserVerification = verification
	}
	if residentKey, ok := residentKeyRequirements[p.RequireResidentKey]; ok {
		selection.ResidentKey = residentKey
		required := residentKey == protocol.ResidentKeyRequirementRequired
		selection.RequireResidentKey = &required
	}
	return selection
}

// Conveyance returns the policy's attestation preference in protocol terms,
// defaulting to no attestation when unspecified.
func (p Policy) Conveyance() protocol.ConveyancePreference {
	if preference, ok := conveyancePreferences[p.AttestationConveyancePreference]; ok {
		return preference
	}
	return protocol.PreferNoAttestation
}
