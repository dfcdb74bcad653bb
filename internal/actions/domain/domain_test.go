package domain

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"opspulse_backend/platform/apperr"
)

func TestParsePayload_UnknownKindIsBadRequest(t *testing.T) {
	_, err := ParsePayload(Kind("send-rocket"), json.RawMessage(`{}`))
	if !apperr.Is(err, apperr.KindBadRequest) {
		t.Fatalf("expected bad request, got %v", err)
	}
}

func TestParsePayload_UnknownFieldsAreRejected(t *testing.T) {
	raw := json.RawMessage(`{"role":"SALES","title":"t","content":"c","extra":true}`)
	_, err := ParsePayload(KindCreateNudge, raw)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error for unknown field, got %v", err)
	}
}

func TestParsePayload_MissingRequiredFieldsFailValidation(t *testing.T) {
	cases := []struct {
		kind Kind
		raw  string
	}{
		{KindCreateNudge, `{"role":"SALES","title":"t"}`},
		{KindCreateWorkItem, `{"description":"d"}`},
		{KindLockInvoice, `{}`},
		{KindReassignWork, `{"workItemId":"` + uuid.New().String() + `"}`},
	}
	for _, tc := range cases {
		if _, err := ParsePayload(tc.kind, json.RawMessage(tc.raw)); !apperr.Is(err, apperr.KindValidation) {
			t.Fatalf("%s: expected validation error, got %v", tc.kind, err)
		}
	}
}

func TestParsePayload_DecodesEachVariant(t *testing.T) {
	invoiceID := uuid.New()
	p, err := ParsePayload(KindLockInvoice, json.RawMessage(`{"invoiceId":"`+invoiceID.String()+`"}`))
	if err != nil {
		t.Fatalf("parse lock invoice: %v", err)
	}
	lock, ok := p.(*LockInvoicePayload)
	if !ok {
		t.Fatalf("expected *LockInvoicePayload, got %T", p)
	}
	if lock.InvoiceID != invoiceID {
		t.Fatalf("expected invoice %s, got %s", invoiceID, lock.InvoiceID)
	}
	if p.ActionKind() != KindLockInvoice {
		t.Fatalf("expected kind %s, got %s", KindLockInvoice, p.ActionKind())
	}
}

func TestActionUndoable(t *testing.T) {
	a := &Action{}
	if a.Undoable() {
		t.Fatal("empty undo data should not be undoable")
	}
	a.UndoData = json.RawMessage("null")
	if a.Undoable() {
		t.Fatal("JSON null undo data should not be undoable")
	}
	a.UndoData = json.RawMessage(`{"workItemId":"x"}`)
	if !a.Undoable() {
		t.Fatal("expected undoable with undo data present")
	}
}
