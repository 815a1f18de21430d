package telemetry

import "go.opentelemetry.io/otel/attribute"

// Domain attribute keys for mindia's task/upload/media operations,
// following the same "prefix.field" key-naming convention as this
// package's storage attribute constants in tracer.go.
const (
	AttrTenant    = "mindia.tenant"
	AttrTaskID    = "mindia.task.id"
	AttrTaskKind  = "mindia.task.kind"
	AttrSessionID = "mindia.session.id"
	AttrMediaID   = "mindia.media.id"
)

func Tenant(tenant string) attribute.KeyValue       { return attribute.String(AttrTenant, tenant) }
func TaskID(id string) attribute.KeyValue           { return attribute.String(AttrTaskID, id) }
func TaskKind(kind string) attribute.KeyValue       { return attribute.String(AttrTaskKind, kind) }
func TaskTenant(tenant string) attribute.KeyValue   { return attribute.String(AttrTenant, tenant) }
func SessionID(id string) attribute.KeyValue        { return attribute.String(AttrSessionID, id) }
func MediaID(id string) attribute.KeyValue          { return attribute.String(AttrMediaID, id) }
