package validators

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	pkgerrors "github.com/angelmondragon/smm-storefront/pkg/errors"
)

type sampleBody struct {
	OrderID    uint64 `json:"order_id" validate:"required"`
	GuestEmail string `json:"guest_email" validate:"omitempty,email"`
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_id":1,"price":"0.01"}`))
	var dest sampleBody
	err := DecodeJSONBody(req, &dest)
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodePermissiveJSONBodyDropsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"order_id":1,"price":"0.01","total":"0.01"}`))
	var dest sampleBody
	if err := DecodePermissiveJSONBody(req, &dest); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if dest.OrderID != 1 {
		t.Fatalf("unexpected order id %d", dest.OrderID)
	}
}

func TestDecodeJSONBodyReportsFieldErrors(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"guest_email":"nope"}`))
	var dest sampleBody
	err := DecodeJSONBody(req, &dest)
	typed := pkgerrors.As(err)
	if typed == nil {
		t.Fatalf("expected typed error, got %v", err)
	}
	details, ok := typed.Details().(map[string]string)
	if !ok {
		t.Fatalf("unexpected details %T", typed.Details())
	}
	if details["order_id"] != "is required" {
		t.Fatalf("unexpected order_id detail %q", details["order_id"])
	}
	if details["guest_email"] != "must be a valid email" {
		t.Fatalf("unexpected guest_email detail %q", details["guest_email"])
	}
}
