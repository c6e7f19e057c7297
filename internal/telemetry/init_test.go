package telemetry

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitRequiresServiceName(t *testing.T) {
	t.Parallel()

	if _, err := Init(context.Background(), "", "localhost:4318", nil); err == nil {
		t.Fatal("expected error for empty service name")
	}
}

func TestInitWithoutEndpointIsDisabled(t *testing.T) {
	t.Parallel()

	core, recorded := observer.New(zapcore.InfoLevel)
	shutdown, err := Init(context.Background(), "order-sync", "", zap.New(core))
	if err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	if shutdown == nil {
		t.Fatal("shutdown should not be nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown() error = %v", err)
	}
	if recorded.FilterMessage("tracing disabled: no OTLP endpoint configured").Len() != 1 {
		t.Fatal("expected disabled tracing to be logged")
	}
}
