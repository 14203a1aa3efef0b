package ingest

import (
	"context"
	"fmt"
	"reflect"

	"go.opentelemetry.io/otel/attribute"

	"courier/internal/logger"
	pkgerrors "courier/pkg/errors"
	"courier/pkg/metrics"
	"courier/pkg/models"
	"courier/pkg/tracing"
)

// Constructor builds one canonical item from a raw object whose type the
// owning Variant accepts. It returns an error instead of a partial item.
type Constructor func(r *Registry, raw interface{}, ictx *Context) (models.Item, error)

// Variant declares the exact raw types one item kind accepts.
type Variant struct {
	Kind      models.ItemKind
	Accepts   []reflect.Type
	Construct Constructor
	// Composite variants classify sub-items and are refused below the top
	// level.
	Composite bool
}

// TypeOf returns the reflect.Type of T, for use in Variant.Accepts.
func TypeOf[T any]() reflect.Type {
	return reflect.TypeOf((*T)(nil)).Elem()
}

// Registry maps raw runtime types to constructors. It is immutable after
// construction and safe for concurrent use.
type Registry struct {
	byType map[reflect.Type]*Variant
	byKind map[models.ItemKind]*Variant
	kinds  []models.ItemKind
	logger logger.Logger
}

// NewRegistry rejects a variant without a constructor, a kind registered
// twice, and a raw type accepted by two variants.
func NewRegistry(log logger.Logger, variants ...Variant) (*Registry, error) {
	r := &Registry{
		byType: make(map[reflect.Type]*Variant),
		byKind: make(map[models.ItemKind]*Variant, len(variants)),
		logger: log.Component("registry"),
	}

	for i := range variants {
		v := &variants[i]

		if v.Kind == "" || v.Construct == nil {
			return nil, pkgerrors.ErrAmbiguousVariant.WithDetail("message",
				fmt.Sprintf("variant %d needs a kind and a constructor", i))
		}
		if _, dup := r.byKind[v.Kind]; dup {
			return nil, pkgerrors.ErrAmbiguousVariant.WithDetail("message",
				fmt.Sprintf("kind %s registered twice", v.Kind))
		}
		if len(v.Accepts) == 0 {
			return nil, pkgerrors.ErrAmbiguousVariant.WithDetail("message",
				fmt.Sprintf("kind %s accepts no types", v.Kind))
		}

		for _, t := range v.Accepts {
			if other, dup := r.byType[t]; dup {
				return nil, pkgerrors.ErrAmbiguousVariant.WithDetail("message",
					fmt.Sprintf("%s accepted by both %s and %s", t, other.Kind, v.Kind))
			}
			r.byType[t] = v
		}

		r.byKind[v.Kind] = v
		r.kinds = append(r.kinds, v.Kind)
	}

	return r, nil
}

// MustNewRegistry is NewRegistry for startup wiring.
func MustNewRegistry(log logger.Logger, variants ...Variant) *Registry {
	r, err := NewRegistry(log, variants...)
	if err != nil {
		panic(err)
	}
	return r
}

// Kinds lists registered kinds in registration order.
func (r *Registry) Kinds() []models.ItemKind {
	out := make([]models.ItemKind, len(r.kinds))
	copy(out, r.kinds)
	return out
}

// Accepts returns the raw types registered for kind.
func (r *Registry) Accepts(kind models.ItemKind) []reflect.Type {
	v, ok := r.byKind[kind]
	if !ok {
		return nil
	}
	out := make([]reflect.Type, len(v.Accepts))
	copy(out, v.Accepts)
	return out
}

// KindOf reports which kind would classify raw, without constructing it.
func (r *Registry) KindOf(raw interface{}) (models.ItemKind, bool) {
	if raw == nil {
		return "", false
	}
	v, ok := r.byType[reflect.TypeOf(raw)]
	if !ok {
		return "", false
	}
	return v.Kind, true
}

// Convert classifies one raw object and reports why it failed.
func (r *Registry) Convert(raw interface{}, ictx *Context) (models.Item, error) {
	if raw == nil {
		return nil, pkgerrors.ErrUnknownVariant.WithDetail("message", "nil object")
	}

	v, ok := r.byType[reflect.TypeOf(raw)]
	if !ok {
		return nil, pkgerrors.ErrUnknownVariant.WithDetail("message", fmt.Sprintf("no variant accepts %T", raw))
	}

	if v.Composite && ictx.Depth() >= maxDepth {
		return nil, pkgerrors.ErrRecursionLimit.WithDetail("message",
			fmt.Sprintf("%s nested at depth %d", v.Kind, ictx.Depth()))
	}

	item, err := v.Construct(r, raw, ictx)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, pkgerrors.ErrMalformedObject.WithDetail("message", fmt.Sprintf("%s constructor returned nothing", v.Kind))
	}

	h := item.Header()
	if h.ID == "" || h.ConversationID == "" {
		return nil, pkgerrors.ErrMalformedObject.WithDetail("message",
			fmt.Sprintf("%s item without id or conversation", v.Kind))
	}

	return item, nil
}

// Classify yields zero or one item. Failures are logged at debug and never
// returned.
func (r *Registry) Classify(raw interface{}, ictx *Context) (models.Item, bool) {
	item, err := r.Convert(raw, ictx)
	if err != nil {
		r.logRejection(raw, ictx, err)
		return nil, false
	}
	metrics.IncClassification(string(item.Kind()), "ok")
	return item, true
}

// ClassifyBatch classifies every object in order, omitting failures.
func (r *Registry) ClassifyBatch(raws []interface{}, ictx *Context) models.Items {
	out := make(models.Items, 0, len(raws))
	for _, raw := range raws {
		if item, ok := r.Classify(raw, ictx); ok {
			out = append(out, item)
		}
	}
	return out
}

// ClassifyBatchCtx is ClassifyBatch wrapped in a span.
func (r *Registry) ClassifyBatchCtx(ctx context.Context, raws []interface{}, ictx *Context) models.Items {
	_, span := tracing.GetTracer("ingest").Start(ctx, "ingest.classify_batch")
	defer span.End()

	items := r.ClassifyBatch(raws, ictx)
	span.SetAttributes(
		attribute.Int("ingest.raw_count", len(raws)),
		attribute.Int("ingest.item_count", len(items)),
	)
	return items
}

func (r *Registry) logRejection(raw interface{}, ictx *Context, err error) {
	kind := "unknown"
	if k, ok := r.KindOf(raw); ok {
		kind = string(k)
	}

	reason := "malformed"
	switch pkgerrors.Code(err) {
	case pkgerrors.ErrUnknownVariant.Code:
		reason = "unknown"
	case pkgerrors.ErrRecursionLimit.Code:
		reason = "recursion"
	}
	metrics.IncClassification(kind, reason)

	r.logger.Debugw("Raw object yielded no item",
		"raw_type", fmt.Sprintf("%T", raw),
		"kind", kind,
		"depth", ictx.Depth(),
		"reason", reason,
		"error", err,
	)
}
