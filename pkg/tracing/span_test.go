package tracing

import (
	"context"
	"sync"
	"testing"
	"time"
)

func TestSpanTreeLinksChildrenToParent(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "process", "inbox/report.pdf")

	rctx, raster := StartChildSpan(ctx, "rasterize")
	raster.End()

	_, ocr := StartChildSpan(ctx, "recognize")
	ocr.SetAttr("pages", 3)
	ocr.End()

	root.End()

	if root.TraceID != "inbox/report.pdf" {
		t.Fatalf("root trace ID = %q", root.TraceID)
	}
	if len(root.Children) != 2 {
		t.Fatalf("root has %d children, want 2", len(root.Children))
	}
	if root.Children[0] != raster || root.Children[1] != ocr {
		t.Error("children not recorded in start order")
	}
	for _, child := range root.Children {
		if child.TraceID != root.TraceID {
			t.Errorf("child %q trace ID = %q, want %q", child.Name, child.TraceID, root.TraceID)
		}
	}
	if got := SpanFromContext(rctx); got != raster {
		t.Errorf("SpanFromContext(child ctx) = %v, want the child span", got)
	}
	if ocr.Attrs["pages"] != 3 {
		t.Errorf("attr pages = %v, want 3", ocr.Attrs["pages"])
	}
}

func TestEndRecordsDuration(t *testing.T) {
	_, span := StartSpan(context.Background(), "process", "doc")
	time.Sleep(5 * time.Millisecond)
	span.End()

	if span.EndTime.IsZero() {
		t.Fatal("End did not set EndTime")
	}
	if span.Duration <= 0 {
		t.Errorf("duration = %v, want > 0", span.Duration)
	}
	if span.Duration != span.EndTime.Sub(span.StartTime) {
		t.Errorf("duration %v does not match end-start %v", span.Duration, span.EndTime.Sub(span.StartTime))
	}
}

func TestSpanFromContextWithoutSpan(t *testing.T) {
	if got := SpanFromContext(context.Background()); got != nil {
		t.Fatalf("SpanFromContext(empty ctx) = %v, want nil", got)
	}
}

func TestChildWithoutParentStandsAlone(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "orphan")
	span.End()

	if span.TraceID != "" {
		t.Errorf("orphan trace ID = %q, want empty", span.TraceID)
	}
	if len(span.Children) != 0 {
		t.Errorf("orphan has %d children, want 0", len(span.Children))
	}
}

func TestConcurrentChildrenAndAttrs(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "process", "doc")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, child := StartChildSpan(ctx, "page")
			child.SetAttr("page", n)
			child.End()
			root.SetAttr("last", n)
		}(i)
	}
	wg.Wait()
	root.End()

	if len(root.Children) != 16 {
		t.Fatalf("root has %d children, want 16", len(root.Children))
	}
	root.Log()
}
