// Package export converts invocation trees into OTLP traces so recorded LMP
// calls can be loaded into any OpenTelemetry backend.
package export

import (
	"bufio"
	"crypto/sha256"
	"fmt"
	"io"
	"math"

	"google.golang.org/protobuf/encoding/protojson"

	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	tracepb "go.opentelemetry.io/proto/otlp/trace/v1"

	"github.com/tobert/trace-studio/internal/invocation"
)

const (
	// DefaultServiceName is the resource service.name when none is given.
	DefaultServiceName = "trace-studio"

	scopeName = "github.com/tobert/trace-studio/internal/export"
)

// Options control the conversion.
type Options struct {
	ServiceName string
}

// TraceID derives a stable 16-byte trace id from a root invocation id.
func TraceID(rootID string) []byte {
	sum := sha256.Sum256([]byte(rootID))
	return sum[:16]
}

// SpanID derives a stable 8-byte span id from an invocation id.
func SpanID(id string) []byte {
	sum := sha256.Sum256([]byte(id))
	return sum[:8]
}

// TracesData converts root invocations into one ResourceSpans holding a
// trace per root. Nested invocations become child spans.
func TracesData(roots []invocation.Invocation, opts Options) *tracepb.TracesData {
	service := opts.ServiceName
	if service == "" {
		service = DefaultServiceName
	}

	var spans []*tracepb.Span
	for _, root := range roots {
		spans = appendSpans(spans, root, TraceID(root.ID), nil)
	}

	return &tracepb.TracesData{
		ResourceSpans: []*tracepb.ResourceSpans{{
			Resource: &resourcepb.Resource{
				Attributes: []*commonpb.KeyValue{stringAttr("service.name", service)},
			},
			ScopeSpans: []*tracepb.ScopeSpans{{
				Scope: &commonpb.InstrumentationScope{Name: scopeName},
				Spans: spans,
			}},
		}},
	}
}

func appendSpans(spans []*tracepb.Span, inv invocation.Invocation, traceID, parentID []byte) []*tracepb.Span {
	span := Span(inv, traceID, parentID)
	spans = append(spans, span)
	for _, used := range inv.Uses {
		spans = appendSpans(spans, used, traceID, span.SpanId)
	}
	return spans
}

// Span converts a single invocation, without its children.
func Span(inv invocation.Invocation, traceID, parentID []byte) *tracepb.Span {
	tr := invocation.FromInvocation(invocation.Invocation{
		ID:               inv.ID,
		LMPID:            inv.LMPID,
		LMP:              inv.LMP,
		CreatedAt:        inv.CreatedAt,
		LatencyMs:        inv.LatencyMs,
		PromptTokens:     inv.PromptTokens,
		CompletionTokens: inv.CompletionTokens,
	})

	start := unixNano(inv.CreatedAt.UnixNano())
	latency := uint64(0)
	if inv.LatencyMs > 0 {
		latency = uint64(math.Round(inv.LatencyMs * 1e6))
	}

	attrs := []*commonpb.KeyValue{
		stringAttr("invocation.id", inv.ID),
		stringAttr("lmp.name", tr.Name),
		intAttr("lmp.version", int64(tr.Version)),
	}
	if tr.LMP.LMPID != "" {
		attrs = append(attrs, stringAttr("lmp.id", tr.LMP.LMPID))
	}
	if inv.PromptTokens != nil {
		attrs = append(attrs, intAttr("llm.usage.prompt_tokens", int64(*inv.PromptTokens)))
	}
	if inv.CompletionTokens != nil {
		attrs = append(attrs, intAttr("llm.usage.completion_tokens", int64(*inv.CompletionTokens)))
	}

	return &tracepb.Span{
		TraceId:           traceID,
		SpanId:            SpanID(inv.ID),
		ParentSpanId:      parentID,
		Name:              tr.Name,
		Kind:              tracepb.Span_SPAN_KIND_INTERNAL,
		StartTimeUnixNano: start,
		EndTimeUnixNano:   start + latency,
		Attributes:        attrs,
		Status:            &tracepb.Status{Code: tracepb.Status_STATUS_CODE_UNSET},
	}
}

// WriteJSONL writes one protojson TracesData line per root invocation, the
// layout the OpenTelemetry Collector file exporter produces. It returns the
// number of lines written.
func WriteJSONL(w io.Writer, roots []invocation.Invocation, opts Options) (int, error) {
	bw := bufio.NewWriter(w)
	marshal := protojson.MarshalOptions{}

	for i, root := range roots {
		data, err := marshal.Marshal(TracesData([]invocation.Invocation{root}, opts))
		if err != nil {
			return i, fmt.Errorf("failed to marshal invocation %s: %w", root.ID, err)
		}
		if _, err := bw.Write(data); err != nil {
			return i, fmt.Errorf("failed to write invocation %s: %w", root.ID, err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return i, fmt.Errorf("failed to write invocation %s: %w", root.ID, err)
		}
	}

	if err := bw.Flush(); err != nil {
		return len(roots), fmt.Errorf("failed to flush export: %w", err)
	}
	return len(roots), nil
}

func unixNano(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

func stringAttr(key, value string) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_StringValue{StringValue: value}},
	}
}

func intAttr(key string, value int64) *commonpb.KeyValue {
	return &commonpb.KeyValue{
		Key:   key,
		Value: &commonpb.AnyValue{Value: &commonpb.AnyValue_IntValue{IntValue: value}},
	}
}
