package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Storage backend attribute keys, shared by every objectstore.Store
// implementation that reports telemetry.
const (
	AttrStoreType = "store.type"
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrRegion    = "storage.region"
)

// Span names for the metadata store's internal operations.
const (
	SpanMetaLookup = "metadata.lookup"
	SpanMetaUpdate = "metadata.update"
	SpanMetaCreate = "metadata.create"
	SpanMetaDelete = "metadata.delete"
)

// Bucket returns an attribute for an object store's bucket name.
func Bucket(name string) attribute.KeyValue {
	return attribute.String(AttrBucket, name)
}

// StorageKey returns an attribute for an object store key.
func StorageKey(key string) attribute.KeyValue {
	return attribute.String(AttrKey, key)
}

// StoreType returns an attribute for the object store backend in use
// (e.g. "s3", "local").
func StoreType(t string) attribute.KeyValue {
	return attribute.String(AttrStoreType, t)
}

// Region returns an attribute for a cloud region.
func Region(region string) attribute.KeyValue {
	return attribute.String(AttrRegion, region)
}

// StartMetadataSpan starts a span for a metadata store operation.
func StartMetadataSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, "metadata."+operation, trace.WithAttributes(attrs...))
}
