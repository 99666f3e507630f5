package errors

import (
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	err := &AppError{
		Code:    ErrNotFound,
		Status:  404,
		Message: "tab not found",
	}

	expected := "NOT_FOUND: tab not found"
	if err.Error() != expected {
		t.Errorf("Error() = %q, want %q", err.Error(), expected)
	}
}

func TestNewUnsupportedFormat(t *testing.T) {
	err := NewUnsupportedFormat("report.pdf")

	if err.Code != ErrUnsupportedFormat {
		t.Errorf("Code = %q, want %q", err.Code, ErrUnsupportedFormat)
	}
	if err.Status != 415 {
		t.Errorf("Status = %d, want 415", err.Status)
	}
	if err.Details["file"] != "report.pdf" {
		t.Errorf("Details[file] = %v, want %q", err.Details["file"], "report.pdf")
	}
}

func TestNewParseFailure(t *testing.T) {
	cause := fmt.Errorf("zip: not a valid zip file")
	err := NewParseFailure("data.xlsx", cause)

	if err.Code != ErrParseFailure {
		t.Errorf("Code = %q, want %q", err.Code, ErrParseFailure)
	}
	if err.Status != 422 {
		t.Errorf("Status = %d, want 422", err.Status)
	}
	if err.Unwrap() != cause {
		t.Errorf("Unwrap() = %v, want cause", err.Unwrap())
	}
}

func TestNewNetworkFailure(t *testing.T) {
	err := NewNetworkFailure("/chef/api/utilisateurs/", 500, nil)

	if err.Code != ErrNetworkFailure {
		t.Errorf("Code = %q, want %q", err.Code, ErrNetworkFailure)
	}
	if err.Status != 502 {
		t.Errorf("Status = %d, want 502", err.Status)
	}
	if err.Details["status"] != 500 {
		t.Errorf("Details[status] = %v, want 500", err.Details["status"])
	}
	if err.Message != "request to /chef/api/utilisateurs/ returned HTTP 500" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewApplicationFailure(t *testing.T) {
	tests := []struct {
		name       string
		msg        string
		status     int
		wantStatus int
		wantMsg    string
	}{
		{name: "ok status becomes 400", msg: "Utilisateur introuvable", status: 200, wantStatus: 400, wantMsg: "Utilisateur introuvable"},
		{name: "server status kept", msg: "Accès refusé", status: 403, wantStatus: 403, wantMsg: "Accès refusé"},
		{name: "empty message", msg: "", status: 0, wantStatus: 400, wantMsg: "the server rejected the request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewApplicationFailure(tt.msg, tt.status)
			if err.Code != ErrApplicationFailure {
				t.Errorf("Code = %q, want %q", err.Code, ErrApplicationFailure)
			}
			if err.Status != tt.wantStatus {
				t.Errorf("Status = %d, want %d", err.Status, tt.wantStatus)
			}
			if err.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMsg)
			}
		})
	}
}

func TestNewPageOutOfRange(t *testing.T) {
	err := NewPageOutOfRange(11, 10)

	if err.Code != ErrInvalidRequest {
		t.Errorf("Code = %q, want %q", err.Code, ErrInvalidRequest)
	}
	if err.Details["page"] != 11 || err.Details["total_pages"] != 10 {
		t.Errorf("Details = %v", err.Details)
	}
}

func TestNewNotFound(t *testing.T) {
	err := NewNotFound("tab", "emails")

	if err.Status != 404 {
		t.Errorf("Status = %d, want 404", err.Status)
	}
	if err.Message != "tab not found: emails" {
		t.Errorf("Message = %q", err.Message)
	}
}

func TestNewCSRFRejected(t *testing.T) {
	err := NewCSRFRejected()
	if err.Code != ErrCSRFRejected || err.Status != 403 {
		t.Errorf("got %q/%d", err.Code, err.Status)
	}
}

func TestNewInternal(t *testing.T) {
	err := NewInternal(fmt.Errorf("database connection failed"))

	if err.Code != ErrInternal {
		t.Errorf("Code = %q, want %q", err.Code, ErrInternal)
	}
	if err.Message != "database connection failed" {
		t.Errorf("Message = %q, want %q", err.Message, "database connection failed")
	}

	if NewInternal(nil).Message != "internal error" {
		t.Errorf("Message for nil = %q", NewInternal(nil).Message)
	}
}

func TestIs(t *testing.T) {
	err := NewNotFound("tab", "x")

	if !Is(err, ErrNotFound) {
		t.Error("Is(err, ErrNotFound) = false, want true")
	}
	if Is(err, ErrInternal) {
		t.Error("Is(err, ErrInternal) = true, want false")
	}
	if Is(fmt.Errorf("plain"), ErrNotFound) {
		t.Error("Is(plain, ErrNotFound) = true, want false")
	}

	wrapped := fmt.Errorf("loading page: %w", err)
	if !Is(wrapped, ErrNotFound) {
		t.Error("Is(wrapped, ErrNotFound) = false, want true")
	}
}

func TestAsAndUserMessage(t *testing.T) {
	if As(nil) != nil {
		t.Error("As(nil) should be nil")
	}
	plain := fmt.Errorf("boom")
	if got := As(plain); got.Code != ErrInternal {
		t.Errorf("As(plain).Code = %q", got.Code)
	}
	if got := UserMessage(fmt.Errorf("ctx: %w", NewApplicationFailure("Fichier déjà validé", 400))); got != "Fichier déjà validé" {
		t.Errorf("UserMessage = %q", got)
	}
	if got := UserMessage(plain); got != "boom" {
		t.Errorf("UserMessage(plain) = %q", got)
	}
	if UserMessage(nil) != "" {
		t.Error("UserMessage(nil) should be empty")
	}
}
