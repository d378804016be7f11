package services_test

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"vidsub/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "extracting", "ffmpeg", "failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"extracting", "ffmpeg", "failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarkerAndDetail(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected default marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected placeholder detail, got %q", err.Error())
	}
}

func TestIsUserFacing(t *testing.T) {
	if services.IsUserFacing(nil) {
		t.Fatal("nil error should not be user facing")
	}
	cancelled := fmt.Errorf("stop: %w", services.ErrCancelled)
	if services.IsUserFacing(cancelled) {
		t.Fatal("cancellation should be absorbed")
	}
	validation := services.Wrap(services.ErrValidation, "start", "", "no input selected", nil)
	if !services.IsUserFacing(validation) {
		t.Fatal("validation errors must be surfaced")
	}
}
