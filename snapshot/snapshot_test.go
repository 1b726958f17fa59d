package snapshot

import (
	"context"
	"testing"

	"github.com/wippyai/isolates/engine"
	"github.com/wippyai/isolates/errors"
	"github.com/wippyai/isolates/internal/wasmtest"
	"github.com/wippyai/isolates/isolate"
)

func TestBuild_ImageSeedsIsolate(t *testing.T) {
	ctx := context.Background()
	eng := engine.NewWazeroEngine()
	defer eng.Close(ctx)

	image, err := Build(ctx, eng, []Script{
		{Code: wasmtest.SetGlobalOnStart("base", 10), Filename: "base.wasm"},
		// Later scripts see state left by earlier ones.
		{Code: wasmtest.AddToGlobalOnStart("base", "derived", 32), Filename: "derived.wasm"},
	}, nil)
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}
	if len(image) == 0 {
		t.Fatal("empty image")
	}

	iso, err := isolate.New(ctx, eng, isolate.Options{Snapshot: image})
	if err != nil {
		t.Fatalf("New with snapshot error: %v", err)
	}
	defer func() {
		iso.Dispose()
		<-iso.Terminated()
	}()

	c, err := iso.CreateContext(ctx)
	if err != nil {
		t.Fatalf("CreateContext error: %v", err)
	}
	defer c.Release()

	v, err := c.Global(ctx, "derived")
	if err != nil {
		t.Fatalf("Global error: %v", err)
	}
	if got, _ := v.AsInt(); got != 42 {
		t.Errorf("derived = %d, want 42", got)
	}
}

func TestBuild_WarmupDoesNotContaminateImage(t *testing.T) {
	ctx := context.Background()
	eng := engine.NewWazeroEngine()
	defer eng.Close(ctx)

	image, err := Build(ctx, eng,
		[]Script{{Code: wasmtest.SetGlobalOnStart("keep", 1)}},
		wasmtest.SetGlobalOnStart("scratch", 99))
	if err != nil {
		t.Fatalf("Build error: %v", err)
	}

	iso, err := isolate.New(ctx, eng, isolate.Options{Snapshot: image})
	if err != nil {
		t.Fatalf("New with snapshot error: %v", err)
	}
	defer func() {
		iso.Dispose()
		<-iso.Terminated()
	}()

	c, err := iso.CreateContext(ctx)
	if err != nil {
		t.Fatalf("CreateContext error: %v", err)
	}
	defer c.Release()

	v, err := c.Global(ctx, "keep")
	if err != nil {
		t.Fatalf("Global error: %v", err)
	}
	if got, _ := v.AsInt(); got != 1 {
		t.Errorf("keep = %d, want 1", got)
	}

	v, err = c.Global(ctx, "scratch")
	if err != nil {
		t.Fatalf("Global error: %v", err)
	}
	if !v.IsUndefined() {
		t.Error("warmup write leaked into the image")
	}
}

func TestBuild_CompileErrorAborts(t *testing.T) {
	ctx := context.Background()
	eng := engine.NewWazeroEngine()
	defer eng.Close(ctx)

	_, err := Build(ctx, eng, []Script{{Code: wasmtest.Invalid(), Filename: "broken.wasm"}}, nil)
	if !errors.IsKind(err, errors.KindSnapshotFailed) {
		t.Fatalf("got %v, want snapshot_failed", err)
	}
	if !errors.IsKind(err, errors.KindCompile) {
		t.Errorf("cause chain lost the compile error: %v", err)
	}
}

func TestBuild_ExecutionErrorAborts(t *testing.T) {
	ctx := context.Background()
	eng := engine.NewWazeroEngine()
	defer eng.Close(ctx)

	_, err := Build(ctx, eng, []Script{{Code: wasmtest.TrapOnRun(), Filename: "trap.wasm"}}, nil)
	if !errors.IsKind(err, errors.KindSnapshotFailed) {
		t.Fatalf("got %v, want snapshot_failed", err)
	}
	if !errors.IsKind(err, errors.KindExecution) {
		t.Errorf("cause chain lost the execution error: %v", err)
	}
}

func TestBuild_WarmupFailureAborts(t *testing.T) {
	ctx := context.Background()
	eng := engine.NewWazeroEngine()
	defer eng.Close(ctx)

	_, err := Build(ctx, eng,
		[]Script{{Code: wasmtest.SetGlobalOnStart("keep", 1)}},
		wasmtest.TrapOnRun())
	if !errors.IsKind(err, errors.KindSnapshotFailed) {
		t.Fatalf("got %v, want snapshot_failed", err)
	}
}
