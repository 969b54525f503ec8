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
		retryable bool
	}{
		{code: CodeValidation, status: http.StatusBadRequest},
		{code: CodeUnauthorized, status: http.StatusUnauthorized},
		{code: CodeMethodNotAllowed, status: http.StatusMethodNotAllowed},
		{code: CodeInvalidSignature, status: http.StatusBadRequest},
		{code: CodeEventInFlight, status: http.StatusConflict, retryable: true},
		{code: CodeWebhookRejected, status: http.StatusBadRequest, retryable: true},
		{code: CodeInternal, status: http.StatusInternalServerError, retryable: true},
		{code: CodeDependency, status: http.StatusServiceUnavailable, retryable: true},
	}

	for _, tt := range tests {
		meta := MetadataFor(tt.code)
		if meta.HTTPStatus != tt.status {
			t.Fatalf("code %s expected status %d got %d", tt.code, tt.status, meta.HTTPStatus)
		}
		if meta.Retryable != tt.retryable {
			t.Fatalf("code %s expected retryable %v got %v", tt.code, tt.retryable, meta.Retryable)
		}
		if meta.PublicMessage == "" {
			t.Fatalf("code %s missing public message", tt.code)
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
	wrapped := Wrap(CodeWebhookRejected, cause, "route event")
	if !stdErrors.Is(wrapped, cause) {
		t.Fatalf("Wrap did not preserve cause")
	}
	if wrapped.Code() != CodeWebhookRejected {
		t.Fatalf("unexpected code %s", wrapped.Code())
	}

	outer := fmt.Errorf("handler: %w", wrapped)
	if CodeOf(outer) != CodeWebhookRejected {
		t.Fatalf("CodeOf should find wrapped coded error")
	}
	if CodeOf(stdErrors.New("plain")) != CodeInternal {
		t.Fatalf("plain errors should map to internal")
	}
}

func TestDumpExtractsPostgresDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ledger_entries_ref_type_key", TableName: "ledger_entries", ColumnName: "stripe_ref", Message: "duplicate key value"}
	err := Wrap(CodeInternal, pgErr, "insert ledger entry")

	dump := Dump(err)
	if dump.Code != CodeInternal {
		t.Fatalf("expected internal code in dump, got %s", dump.Code)
	}
	if dump.PGCode != "23505" || dump.PGConstraint != "ledger_entries_ref_type_key" {
		t.Fatalf("unexpected pg details %+v", dump)
	}
	if dump.PGColumn != "stripe_ref" {
		t.Fatalf("expected pg column, got %q", dump.PGColumn)
	}
	if len(dump.Chain) != 2 {
		t.Fatalf("expected two links in chain, got %v", dump.Chain)
	}
}
