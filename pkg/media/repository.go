package media

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jeremybastin1207/mindia/internal/dbstore"
	"github.com/jeremybastin1207/mindia/internal/logger"
	"github.com/jeremybastin1207/mindia/internal/merrors"
	"github.com/jeremybastin1207/mindia/internal/telemetry"
	"github.com/jeremybastin1207/mindia/pkg/objectstore"
)

// MaxUserMetadataKeys bounds the number of keys in the `user` metadata
// namespace per media row (spec §6: "maximum keys in user namespace, a
// constant").
const MaxUserMetadataKeys = 64

// MaxMetadataValueBytes bounds the serialized size of a single user
// metadata value.
const MaxMetadataValueBytes = 4096

var userMetadataKeyPattern = regexp.MustCompile(`^[A-Za-z0-9_\-.:]+$`)

// ReservedMetadataPrefixes may never be used as a user metadata key prefix.
var ReservedMetadataPrefixes = []string{"_internal", "__mindia"}

// Repository is the tenant-scoped Media Repository (spec §4.2).
type Repository struct {
	db    *gorm.DB
	store objectstore.Store
}

// NewRepository constructs a Repository over an already-migrated GORM
// connection and an object store backend.
func NewRepository(db *gorm.DB, store objectstore.Store) *Repository {
	return &Repository{db: db, store: store}
}

// CreateParams carries the shared fields every per-kind create operation
// needs, prior to the kind-specific metadata.
type CreateParams struct {
	Tenant           string
	Filename         string
	OriginalFilename string
	ContentType      string
	StoreBehavior    StoreBehavior
	Metadata         *NestedMetadata
	DefaultEphemeralTTL time.Duration
}

func (p CreateParams) resolveStorePermanently(systemDefaultPermanent bool) (bool, *time.Time, error) {
	if !p.StoreBehavior.Valid() {
		return false, nil, errInvalidMetadata("media.resolveStoreBehavior", fmt.Errorf("invalid store_behavior %q", p.StoreBehavior))
	}

	var permanent bool
	switch p.StoreBehavior {
	case StoreBehaviorPermanent:
		permanent = true
	case StoreBehaviorEphemeral:
		permanent = false
	case StoreBehaviorAuto:
		permanent = systemDefaultPermanent
	}

	if permanent {
		return true, nil, nil
	}

	ttl := p.DefaultEphemeralTTL
	if ttl == 0 {
		ttl = 24 * time.Hour
	}
	expires := time.Now().Add(ttl)
	return false, &expires, nil
}

// createBytes uploads body to the object store and creates the media row
// plus its storage location in one transaction, guaranteeing "no media
// without a location" (spec §4.2).
func (r *Repository) createBytes(ctx context.Context, kind Kind, params CreateParams, body []byte, typeMeta interface{}) (*Media, error) {
	if !kind.Valid() {
		return nil, errInvalidMetadata("media.Create", fmt.Errorf("invalid kind %q", kind))
	}
	if !kind.AllowsContentType(params.ContentType) {
		return nil, errInvalidMetadata("media.Create", fmt.Errorf("content_type %q not permitted for kind %q", params.ContentType, kind))
	}

	key, url, err := r.store.Upload(ctx, params.Tenant, params.Filename, params.ContentType, body)
	if err != nil {
		return nil, errStorage("media.Create", err)
	}

	media, err := r.insertMedia(ctx, kind, params, int64(len(body)), key, url, typeMeta)
	if err != nil {
		// Bytes are already visible at key; best-effort cleanup so a
		// failed insert doesn't leak an orphaned object.
		if delErr := r.store.Delete(ctx, key); delErr != nil {
			logger.Warn("media.Create: cleanup after failed insert", "key", key, "error", delErr)
		}
		return nil, err
	}
	return media, nil
}

// CreateFromStorage creates a media row for bytes already present in the
// object store (the chunked-upload and presigned-direct-upload paths).
func (r *Repository) CreateFromStorage(ctx context.Context, kind Kind, params CreateParams, size int64, key, url string, typeMeta interface{}) (*Media, error) {
	if !kind.Valid() {
		return nil, errInvalidMetadata("media.CreateFromStorage", fmt.Errorf("invalid kind %q", kind))
	}
	if !kind.AllowsContentType(params.ContentType) {
		return nil, errInvalidMetadata("media.CreateFromStorage", fmt.Errorf("content_type %q not permitted for kind %q", params.ContentType, kind))
	}
	return r.insertMedia(ctx, kind, params, size, key, url, typeMeta)
}

func (r *Repository) insertMedia(ctx context.Context, kind Kind, params CreateParams, size int64, key, url string, typeMeta interface{}) (*Media, error) {
	permanent, expiresAt, err := params.resolveStorePermanently(true)
	if err != nil {
		return nil, err
	}

	metadata := NewNestedMetadata()
	if params.Metadata != nil {
		metadata = *params.Metadata
	}

	var media *Media
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loc := newStorageLocation(uuid.NewString(), r.store.BackendKind(), key, url)
		if err := tx.Create(loc).Error; err != nil {
			return errDatabase("media.insertMedia", err)
		}

		now := time.Now()
		media = &Media{
			ID:                uuid.NewString(),
			Tenant:            params.Tenant,
			StorageLocationID: loc.ID,
			Kind:              kind,
			Filename:          params.Filename,
			OriginalFilename:  params.OriginalFilename,
			ContentType:       params.ContentType,
			FileSize:          size,
			UploadedAt:        now,
			StoreBehavior:     params.StoreBehavior,
			StorePermanently:  permanent,
			ExpiresAt:         expiresAt,
			Metadata:          metadata,
			TypeMetadata:      encodeKindMetadata(typeMeta),
			StorageLocation:   *loc,
		}
		if err := tx.Create(media).Error; err != nil {
			return errDatabase("media.insertMedia", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return media, nil
}

// CreateImage uploads bytes synchronously and creates an Image media row.
func (r *Repository) CreateImage(ctx context.Context, params CreateParams, body []byte, meta ImageMetadata) (*Media, error) {
	return r.createBytes(ctx, KindImage, params, body, meta)
}

// CreateVideo uploads bytes synchronously and creates a Video media row,
// initializing processing-status to Pending per spec §4.4 step 10.
func (r *Repository) CreateVideo(ctx context.Context, params CreateParams, body []byte, meta VideoMetadata) (*Media, error) {
	if meta.ProcessingStatus == "" {
		meta.ProcessingStatus = VideoProcessingPending
	}
	return r.createBytes(ctx, KindVideo, params, body, meta)
}

// CreateAudio uploads bytes synchronously and creates an Audio media row.
func (r *Repository) CreateAudio(ctx context.Context, params CreateParams, body []byte, meta AudioMetadata) (*Media, error) {
	return r.createBytes(ctx, KindAudio, params, body, meta)
}

// CreateDocument uploads bytes synchronously and creates a Document media row.
func (r *Repository) CreateDocument(ctx context.Context, params CreateParams, body []byte, meta DocumentMetadata) (*Media, error) {
	return r.createBytes(ctx, KindDocument, params, body, meta)
}

// Get loads a tenant-scoped media row. A lookup with a foreign tenant
// returns NotFound, never the other tenant's row.
func (r *Repository) Get(ctx context.Context, tenant, id string) (*Media, error) {
	ctx, span := telemetry.StartMetadataSpan(ctx, "get", telemetry.Tenant(tenant), telemetry.MediaID(id))
	defer span.End()

	var m Media
	err := r.db.WithContext(ctx).
		Preload("StorageLocation").
		Where("id = ? AND tenant = ?", id, tenant).
		First(&m).Error
	if err != nil {
		return nil, errNotFound("media.Get", dbstore.ConvertNotFoundError(err, fmt.Errorf("media %s not found", id)))
	}
	return &m, nil
}

// Delete implements the ordered deletion protocol from spec §4.2: bytes
// first, row second. If the row delete fails after bytes are gone, the
// row is orphaned intentionally — reconciliation (§4.9) cleans it up,
// which is the accepted trade-off for "no DB-present-without-bytes".
func (r *Repository) Delete(ctx context.Context, tenant, id string) error {
	m, err := r.Get(ctx, tenant, id)
	if err != nil {
		return err
	}

	if err := r.store.Delete(ctx, m.StorageLocation.Key); err != nil {
		return errStorage("media.Delete", err)
	}

	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ? AND tenant = ?", id, tenant).Delete(&Media{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", m.StorageLocationID).Delete(&StorageLocation{}).Error
	})
	if err != nil {
		return errDatabase("media.Delete", err)
	}
	return nil
}

// ListExpired returns rows where store_permanently=false AND
// expires_at <= now, ordered by expires_at ascending, bounded by limit.
// Used exclusively by the Cleanup/Reconciliation Service (§4.9).
func (r *Repository) ListExpired(ctx context.Context, limit int) ([]*Media, error) {
	var rows []*Media
	q := r.db.WithContext(ctx).
		Where("store_permanently = ? AND expires_at <= ?", false, time.Now()).
		Order("expires_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, errDatabase("media.ListExpired", err)
	}
	return rows, nil
}

// ListAllStorageKeys returns the full set of object-store keys this
// repository currently has a media row for, keyed for O(1) membership
// checks. Used exclusively by the Cleanup/Reconciliation Service's
// storage-orphan sweep (§4.9) to tell a live object apart from one left
// behind by a step-3-failed upload.
func (r *Repository) ListAllStorageKeys(ctx context.Context) (map[string]bool, error) {
	var keys []string
	if err := r.db.WithContext(ctx).Model(&StorageLocation{}).Pluck("key", &keys).Error; err != nil {
		return nil, errDatabase("media.ListAllStorageKeys", err)
	}
	known := make(map[string]bool, len(keys))
	for _, k := range keys {
		known[k] = true
	}
	return known, nil
}

// View is a denormalized response view over a Media row, built in batch
// (never per-row) by BuildViews.
type View struct {
	Media      *Media
	URL        string
	FolderName *string
}

// BuildViews builds response views for a batch of media rows without any
// database query, so nothing is fetched per row (spec §4.2's "never per
// row" requirement). Each URL is read from the row's StorageLocation, which
// Get and SearchByUserMetadata preload; FolderName is always nil, since no
// folder service is wired in (folder management is a named Non-goal, §1).
func (r *Repository) BuildViews(ctx context.Context, rows []*Media) []View {
	views := make([]View, len(rows))
	for i, m := range rows {
		views[i] = View{Media: m, URL: m.StorageLocation.URL, FolderName: nil}
	}
	return views
}

// SetUserMetadata validates and replaces the `user` namespace of a media
// row's metadata, merging inside a single transaction with the current
// row so a concurrent plugin-namespace writer never loses its write
// (spec §4.2).
func (r *Repository) SetUserMetadata(ctx context.Context, tenant, id string, values map[string]json.RawMessage) error {
	if len(values) > MaxUserMetadataKeys {
		return errMetadataKeyLimitExceeded("media.SetUserMetadata", fmt.Errorf("%d keys exceeds limit of %d", len(values), MaxUserMetadataKeys))
	}
	for k, v := range values {
		if !userMetadataKeyPattern.MatchString(k) {
			return errInvalidMetadata("media.SetUserMetadata", fmt.Errorf("invalid metadata key %q", k))
		}
		for _, prefix := range ReservedMetadataPrefixes {
			if strings.HasPrefix(k, prefix) {
				return errInvalidMetadata("media.SetUserMetadata", fmt.Errorf("key %q uses reserved prefix %q", k, prefix))
			}
		}
		if len(v) > MaxMetadataValueBytes {
			return errMetadataKeyLimitExceeded("media.SetUserMetadata", fmt.Errorf("value for key %q exceeds %d bytes", k, MaxMetadataValueBytes))
		}
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m Media
		if err := tx.Where("id = ? AND tenant = ?", id, tenant).First(&m).Error; err != nil {
			return errNotFound("media.SetUserMetadata", dbstore.ConvertNotFoundError(err, fmt.Errorf("media %s not found", id)))
		}
		m.Metadata.User = values
		return tx.Model(&Media{}).Where("id = ?", id).Update("metadata", m.Metadata).Error
	})
}

// SetPluginMetadata replaces one plugin's namespace within
// `metadata.plugins`, inside a transaction, so writes to distinct plugin
// namespaces commute and writes to the same namespace are last-writer-wins
// (spec §4.2, §8).
func (r *Repository) SetPluginMetadata(ctx context.Context, tenant, id, plugin string, value map[string]json.RawMessage) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m Media
		if err := tx.Where("id = ? AND tenant = ?", id, tenant).First(&m).Error; err != nil {
			return errNotFound("media.SetPluginMetadata", dbstore.ConvertNotFoundError(err, fmt.Errorf("media %s not found", id)))
		}
		if m.Metadata.Plugins == nil {
			m.Metadata.Plugins = map[string]map[string]json.RawMessage{}
		}
		m.Metadata.Plugins[plugin] = value
		return tx.Model(&Media{}).Where("id = ?", id).Update("metadata", m.Metadata).Error
	})
}

// MaxMetadataFilters bounds the number of key/value pairs accepted by
// SearchByUserMetadata in one call.
const MaxMetadataFilters = 10

// SearchByUserMetadata returns a tenant's media rows whose `user` metadata
// namespace contains every key/value pair in filters, using Postgres's
// JSONB containment operator. GORM's query builder has no `@>` support, so
// this drops to raw SQL the same way the store layer does for its
// post-migration fixups. SQLite cannot honor JSONB containment (its
// metadata column is stored as plain text), so this returns an
// Unrecoverable error on a non-Postgres store rather than attempting a
// degraded emulation.
func (r *Repository) SearchByUserMetadata(ctx context.Context, tenant string, filters map[string]json.RawMessage) ([]*Media, error) {
	if len(filters) == 0 {
		return nil, errInvalidMetadata("media.SearchByUserMetadata", fmt.Errorf("at least one filter is required"))
	}
	if len(filters) > MaxMetadataFilters {
		return nil, errMetadataKeyLimitExceeded("media.SearchByUserMetadata", fmt.Errorf("%d filters exceeds limit of %d", len(filters), MaxMetadataFilters))
	}
	if r.db.Dialector.Name() != "postgres" {
		return nil, merrors.New(merrors.Unrecoverable, "media.SearchByUserMetadata", fmt.Errorf("JSONB containment search requires a postgres store"))
	}

	containment := map[string]json.RawMessage{}
	for k, v := range filters {
		if !userMetadataKeyPattern.MatchString(k) {
			return nil, errInvalidMetadata("media.SearchByUserMetadata", fmt.Errorf("invalid metadata key %q", k))
		}
		containment[k] = v
	}
	payload, err := json.Marshal(containment)
	if err != nil {
		return nil, errInvalidMetadata("media.SearchByUserMetadata", err)
	}

	ctx, span := telemetry.StartMetadataSpan(ctx, "search_by_user_metadata", telemetry.Tenant(tenant))
	defer span.End()

	var rows []*Media
	err = r.db.WithContext(ctx).
		Preload("StorageLocation").
		Where("tenant = ? AND metadata::jsonb->'user' @> ?::jsonb", tenant, string(payload)).
		Order("uploaded_at DESC").
		Find(&rows).Error
	if err != nil {
		return nil, errDatabase("media.SearchByUserMetadata", err)
	}
	return rows, nil
}

// UpdateVideoProcessing updates only the type_metadata column's video
// processing fields, used by transcode handlers to report progress.
func (r *Repository) UpdateVideoProcessing(ctx context.Context, tenant, id string, status VideoProcessingStatus, masterPlaylistKey *string, variants []VariantLadderRung) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var m Media
		if err := tx.Where("id = ? AND tenant = ? AND kind = ?", id, tenant, KindVideo).First(&m).Error; err != nil {
			return errNotFound("media.UpdateVideoProcessing", dbstore.ConvertNotFoundError(err, fmt.Errorf("video %s not found", id)))
		}
		vm, err := m.TypeMetadata.Video()
		if err != nil {
			return errInternal("media.UpdateVideoProcessing", err)
		}
		vm.ProcessingStatus = status
		if masterPlaylistKey != nil {
			vm.MasterPlaylistKey = masterPlaylistKey
		}
		if variants != nil {
			vm.Variants = variants
		}
		return tx.Model(&Media{}).Where("id = ?", id).Update("type_metadata", encodeKindMetadata(vm)).Error
	})
}
