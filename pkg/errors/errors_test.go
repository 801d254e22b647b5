package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
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
		{code: CodeNotFound, status: http.StatusNotFound, publicMsg: "resource not found"},
		{code: CodeStateConflict, status: http.StatusUnprocessableEntity, publicMsg: "state transition disallowed", detailsOK: true},
		{code: CodeConfiguration, status: http.StatusConflict, publicMsg: "operation not configured", detailsOK: true},
		{code: CodeInternal, status: http.StatusInternalServerError, publicMsg: "internal server error", retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, publicMsg: "dependency unavailable", retryable: true},
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

func TestWrapPreservesCause(t *testing.T) {
	cause := stdErrors.New("boom")
	wrapped := Wrap(CodeConflict, cause, "ctx")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeConflict {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}
	outer := fmt.Errorf("outer: %w", wrapped)
	if !IsCode(outer, CodeConflict) {
		t.Fatalf("IsCode should see through fmt wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	if IsRetryable(nil) {
		t.Fatalf("nil is not retryable")
	}
	if !IsRetryable(stdErrors.New("socket closed")) {
		t.Fatalf("untyped errors should be retryable")
	}
	if IsRetryable(New(CodeConfiguration, "provider missing")) {
		t.Fatalf("configuration errors must not be retried")
	}
	if !IsRetryable(Wrap(CodeDependency, stdErrors.New("timeout"), "provider call")) {
		t.Fatalf("dependency errors should be retryable")
	}
}

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_orders_number_sibling"}
	if !IsUniqueViolation(fmt.Errorf("insert: %w", pgErr), "ux_orders_number_sibling") {
		t.Fatalf("expected pg unique violation to match")
	}
	if IsUniqueViolation(pgErr, "other_constraint") {
		t.Fatalf("constraint filter should not match")
	}
	if !IsUniqueViolation(stdErrors.New("UNIQUE constraint failed: orders.order_number"), "") {
		t.Fatalf("expected sqlite unique violation to match")
	}
	if IsUniqueViolation(stdErrors.New("connection refused"), "") {
		t.Fatalf("unexpected match")
	}
}

func TestDumpCapturesPostgresDetail(t *testing.T) {
	err := Wrap(CodeDependency, &pgconn.PgError{Code: "23503", TableName: "payments", Message: "fk"}, "insert payment")
	d := Dump(err)
	if d.Code != CodeDependency || d.PGCode != "23503" || d.PGTable != "payments" {
		t.Fatalf("unexpected dump %+v", d)
	}
	if len(d.Chain) < 2 {
		t.Fatalf("expected error chain, got %v", d.Chain)
	}
}
