package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestMetadataForKnownCodes(t *testing.T) {
	tests := []struct {
		code      Code
		status    int
		publicMsg string
		retryable bool
		detailsOK bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest, publicMsg: "validation failed", detailsOK: true},
		{code: CodeUnauthorized, status: http.StatusUnauthorized, publicMsg: "authentication required"},
		{code: CodeForbidden, status: http.StatusForbidden, publicMsg: "access denied"},
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeConflict, status: http.StatusConflict, publicMsg: "conflict detected"},
		{code: CodeDuplicateCode, status: http.StatusConflict, publicMsg: "access code already in use", detailsOK: true},
		{code: CodeRateLimit, status: http.StatusTooManyRequests, publicMsg: "rate limit exceeded"},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true, detailsOK: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.PublicMessage != tt.publicMsg {
			t.Fatalf("code %s expected public message %q got %q", tt.code, tt.publicMsg, meta.PublicMessage)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.DetailsAllowed != tt.detailsOK {
			t.Fatalf("code %s expected details allowed %v got %v", tt.code, tt.detailsOK, meta.DetailsAllowed)
		}
	}
}

func TestMetadataForUnknownCodeDefaultsToInternal(t *testing.T) {
	meta := MetadataFor("SOMETHING_UNKNOWN")
	if meta.HTTPStatus != http.StatusInternalServerError {
		t.Fatalf("expected internal status, got %d", meta.HTTPStatus)
	}
}

func TestErrorConstructors(t *testing.T) {
	base := New(CodeValidation, "missing foo")
	if base.Code() != CodeValidation {
		t.Fatalf("expected validation code, got %s", base.Code())
	}
	if base.Message() != "missing foo" {
		t.Fatalf("unexpected message %q", base.Message())
	}
	if base.Details() != nil {
		t.Fatalf("details should be nil by default")
	}

	detail := map[string]any{"field": "foo"}
	base.WithDetails(detail)
	if base.Details() == nil {
		t.Fatalf("details should be preserved")
	}

	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
}

func TestAsReturnsTypedError(t *testing.T) {
	err := New(CodeForbidden, "no entry")
	if got := As(err); got == nil || got.Code() != CodeForbidden {
		t.Fatalf("As failed to return typed error")
	}
	if As(nil) != nil {
		t.Fatalf("As(nil) should return nil")
	}
}

func TestIsCodeFollowsWrappedChain(t *testing.T) {
	inner := New(CodeDuplicateCode, "access code 1001 already assigned")
	outer := fmt.Errorf("create profile: %w", inner)

	if !IsCode(outer, CodeDuplicateCode) {
		t.Fatalf("expected duplicate code to be found through wrapping")
	}
	if IsCode(outer, CodeValidation) {
		t.Fatalf("unexpected validation match")
	}
	if IsCode(stdErrors.New("plain"), CodeInternal) {
		t.Fatalf("plain errors carry no code")
	}
}

func TestDumpCapturesPostgresConstraint(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_profiles_access_code", TableName: "profiles"}
	err := Wrap(CodeDuplicateCode, pgErr, "insert profile")

	d := Dump(err)
	if d.Code != CodeDuplicateCode {
		t.Fatalf("expected code %s, got %s", CodeDuplicateCode, d.Code)
	}
	if d.PGCode != "23505" || d.PGConstraint != "ux_profiles_access_code" {
		t.Fatalf("unexpected pg fields %+v", d)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected two chain entries, got %d", len(d.Chain))
	}

	pqErr := &pq.Error{Code: "23505", Constraint: "ux_doors_name", Table: "doors"}
	if got := Dump(pqErr); got.PGConstraint != "ux_doors_name" || got.PGTable != "doors" {
		t.Fatalf("unexpected pq fields %+v", got)
	}
}

func TestWithFieldMergesReasons(t *testing.T) {
	err := New(CodeValidation, "invalid door").
		WithField("name", "is required").
		WithField("state", "must be open or closed")

	details, ok := err.Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field map, got %#v", err.Details())
	}
	if details["name"] != "is required" || details["state"] != "must be open or closed" {
		t.Fatalf("unexpected details %#v", details)
	}

	replaced := New(CodeDependency, "down").WithDetails([]string{"redis"}).WithField("redis", "timeout")
	if got := replaced.Details().(map[string]string)["redis"]; got != "timeout" {
		t.Fatalf("expected replaced details, got %#v", replaced.Details())
	}
}
