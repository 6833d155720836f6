package tracing

import (
	"context"
	"testing"

	"github.com/hearthside/domo/internal/config"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(context.Background(), config.TracingConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if shutdown == nil {
		t.Fatal("nil shutdown")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatal(err)
	}
}

func TestSetupRejectsUnknownProtocol(t *testing.T) {
	_, err := Setup(context.Background(), config.TracingConfig{
		Enabled:  true,
		Protocol: "carrier-pigeon",
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestStartWithoutSetupIsSafe(t *testing.T) {
	ctx, span := Start(context.Background(), "test.span")
	if ctx == nil || span == nil {
		t.Fatal("nil ctx or span")
	}
	span.End()
}
