package debrid

import (
	"testing"

	"streamgate/addonservice/internal/domain"
)

func TestAllDebridNormalizeError(t *testing.T) {
	client := NewAllDebridClient("key")

	cases := []struct {
		code    string
		classed bool
		kind    domain.FailureKind
	}{
		{code: "AUTH_BAD_APIKEY", classed: true, kind: domain.FailureExpiredAPIKey},
		{code: "AUTH_APIKEY_EXPIRED", classed: true, kind: domain.FailureExpiredAPIKey},
		{code: "AUTH_BLOCKED", classed: true, kind: domain.FailureTwoFactorAuth},
		{code: "AUTH_USER_BANNED", classed: true, kind: domain.FailureAccessDenied},
		{code: "MUST_BE_PREMIUM", classed: true, kind: domain.FailureNotPremium},
		{code: "MAGNET_PROCESSING", classed: true, kind: domain.FailureNotReady},
		{code: "MAGNET_INVALID_URI", classed: false},
		{code: "MAGNET_TOO_MANY", classed: false},
		{code: "SOME_FUTURE_CODE", classed: false},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := client.normalizeError(tc.code, "detail")
			if err == nil {
				t.Fatal("expected an error")
			}
			kind, ok := domain.ResolveFailure(err)
			if ok != tc.classed {
				t.Fatalf("classified = %v, want %v (err %v)", ok, tc.classed, err)
			}
			if tc.classed && kind != tc.kind {
				t.Fatalf("kind = %s, want %s", kind, tc.kind)
			}
		})
	}
}

func TestRealDebridNormalizeError(t *testing.T) {
	client := NewRealDebridClient("key")

	cases := []struct {
		name    string
		status  int
		apiErr  realDebridError
		classed bool
		kind    domain.FailureKind
	}{
		{name: "unauthorized", status: 401, classed: true, kind: domain.FailureExpiredAPIKey},
		{name: "bad token", status: 400, apiErr: realDebridError{Error: "bad_token", ErrorCode: 8}, classed: true, kind: domain.FailureExpiredAPIKey},
		{name: "account locked", status: 403, apiErr: realDebridError{Error: "account_locked", ErrorCode: 14}, classed: true, kind: domain.FailureTwoFactorAuth},
		{name: "permission denied", status: 403, apiErr: realDebridError{Error: "permission_denied", ErrorCode: 9}, classed: true, kind: domain.FailureAccessDenied},
		{name: "forbidden without code", status: 403, classed: true, kind: domain.FailureAccessDenied},
		{name: "not premium", status: 400, apiErr: realDebridError{Error: "must_be_premium", ErrorCode: 36}, classed: true, kind: domain.FailureNotPremium},
		{name: "service unavailable", status: 503, classed: true, kind: domain.FailureNotReady},
		{name: "parameter missing", status: 400, apiErr: realDebridError{Error: "parameter_missing", ErrorCode: 16}, classed: false},
		{name: "unknown resource", status: 404, apiErr: realDebridError{Error: "unknown_resource", ErrorCode: 7}, classed: false},
		{name: "plain server error", status: 500, classed: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := client.normalizeError(tc.status, tc.apiErr)
			if err == nil {
				t.Fatal("expected an error")
			}
			kind, ok := domain.ResolveFailure(err)
			if ok != tc.classed {
				t.Fatalf("classified = %v, want %v (err %v)", ok, tc.classed, err)
			}
			if tc.classed && kind != tc.kind {
				t.Fatalf("kind = %s, want %s", kind, tc.kind)
			}
		})
	}
}

func TestPremiumizeNormalizeError(t *testing.T) {
	client := NewPremiumizeClient("key")

	cases := []struct {
		name    string
		message string
		classed bool
		kind    domain.FailureKind
	}{
		{name: "not premium", message: "This feature is available to premium customers only", classed: true, kind: domain.FailureNotPremium},
		{name: "bad apikey", message: "invalid apikey", classed: true, kind: domain.FailureExpiredAPIKey},
		{name: "queued", message: "transfer still in queue", classed: true, kind: domain.FailureNotReady},
		{name: "banned account", message: "account banned", classed: true, kind: domain.FailureAccessDenied},
		{name: "duplicate job", message: "You already have this job added", classed: false},
		{name: "unknown message", message: "something unexpected happened", classed: false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := client.normalizeError(tc.message)
			if err == nil {
				t.Fatal("expected an error")
			}
			kind, ok := domain.ResolveFailure(err)
			if ok != tc.classed {
				t.Fatalf("classified = %v, want %v (err %v)", ok, tc.classed, err)
			}
			if tc.classed && kind != tc.kind {
				t.Fatalf("kind = %s, want %s", kind, tc.kind)
			}
		})
	}
}
