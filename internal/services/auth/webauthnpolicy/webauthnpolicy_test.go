package webauthnpolicy

import (
	"errors"
	"testing"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	apperrors "github.com/realmgate/realmgate/internal/platform/errors"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		policy  Policy
		wantErr bool
	}{
		{
			name:   "default policy",
			policy: Default(),
		},
		{
			name: "fully specified",
			policy: Policy{
				RPEntityName:                    "example",
				SignatureAlgorithms:             []string{"ES256", "RS256", "EdDSA"},
				RPID:                            "example.test",
				AttestationConveyancePreference: "direct",
				AuthenticatorAttachment:         "cross-platform",
				RequireResidentKey:              "Yes",
				UserVerificationRequirement:     "preferred",
				CreateTimeout:                   120,
				AvoidSameAuthenticatorRegister:  true,
				AcceptableAaguids:               []string{"6028b017-b1d4-4c02-b4b3-afcdafc96bb2"},
				ExtraOrigins:                    []string{"https://example.test"},
			},
		},
		{
			name:   "empty enums mean unspecified",
			policy: Policy{RPEntityName: "example"},
		},
		{
			name:    "unknown signature algorithm",
			policy:  Policy{SignatureAlgorithms: []string{"HS256"}},
			wantErr: true,
		},
		{
			name:    "unknown attestation preference",
			policy:  Policy{AttestationConveyancePreference: "maybe"},
			wantErr: true,
		},
		{
			name:    "unknown attachment",
			policy:  Policy{AuthenticatorAttachment: "usb"},
			wantErr: true,
		},
		{
			name:    "resident key is Yes or No",
			policy:  Policy{RequireResidentKey: "required"},
			wantErr: true,
		},
		{
			name:    "unknown user verification",
			policy:  Policy{UserVerificationRequirement: "always"},
			wantErr: true,
		},
		{
			name:    "negative timeout",
			policy:  Policy{CreateTimeout: -1},
			wantErr: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.policy.Validate()
			if tc.wantErr {
				want := apperrors.New(apperrors.CodePolicyInvalidValue, "")
				if !errors.Is(err, want) {
					t.Fatalf("expected policy value error, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("validate: %v", err)
			}
		})
	}
}

func TestCOSEAlgorithms(t *testing.T) {
	policy := Policy{SignatureAlgorithms: []string{"ES256", "RS256"}}

	got := policy.COSEAlgorithms()
	want := []webauthncose.COSEAlgorithmIdentifier{webauthncose.AlgES256, webauthncose.AlgRS256}
	if len(got) != len(want) {
		t.Fatalf("algorithms = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("algorithms[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestAuthenticatorSelection(t *testing.T) {
	policy := Policy{
		AuthenticatorAttachment:     "platform",
		RequireResidentKey:          "Yes",
		UserVerificationRequirement: "required",
	}

	selection := policy.AuthenticatorSelection()
	if selection.AuthenticatorAttachment != protocol.Platform {
		t.Fatalf("attachment = %q", selection.AuthenticatorAttachment)
	}
	if selection.UserVerification != protocol.VerificationRequired {
		t.Fatalf("user verification = %q", selection.UserVerification)
	}
	if selection.ResidentKey != protocol.ResidentKeyRequirementRequired {
		t.Fatalf("resident key = %q", selection.ResidentKey)
	}
	if selection.RequireResidentKey == nil || !*selection.RequireResidentKey {
		t.Fatal("expected RequireResidentKey true")
	}
}

func TestAuthenticatorSelectionUnspecified(t *testing.T) {
	selection := Policy{}.AuthenticatorSelection()
	if selection.AuthenticatorAttachment != "" || selection.UserVerification != "" {
		t.Fatalf("expected zero selection, got %+v", selection)
	}
	if selection.RequireResidentKey != nil {
		t.Fatal("expected nil RequireResidentKey")
	}
}

func TestConveyance(t *testing.T) {
	if got := (Policy{}).Conveyance(); got != protocol.PreferNoAttestation {
		t.Fatalf("unspecified conveyance = %q", got)
	}
	if got := (Policy{AttestationConveyancePreference: "enterprise"}).Conveyance(); got != protocol.PreferEnterpriseAttestation {
		t.Fatalf("conveyance = %q", got)
	}
}

func TestKindValid(t *testing.T) {
	if !KindTwoFactor.Valid() || !KindPasswordless.Valid() {
		t.Fatal("expected policy kinds to be valid")
	}
	if Kind("webauthn-policy-extra").Valid() {
		t.Fatal("unexpected valid kind")
	}
}
