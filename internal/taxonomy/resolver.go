package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"

	"github.com/idantify-ai/localsource-scraper/internal/manifest"
	"github.com/idantify-ai/localsource-scraper/internal/specifier"
)

const (
	ImagesEndpoint    = "images"
	imageParentKey    = "speciesId"
	imageShotTypeKey  = "imageShotTypeId"
	imageURLKey       = "url"
	DefaultFallbackID = "4"
)

// API is the subset of the Specifier client the resolver needs.
type API interface {
	ImageShotTypes(ctx context.Context) ([]specifier.ShotType, error)
	Create(ctx context.Context, endpoint string, payload map[string]any) (string, error)
	Find(ctx context.Context, endpoint string, query map[string]string) (string, bool, error)
}

// Status reports whether an image was created or already registered.
type Status string

const (
	StatusAdded Status = "added"
	StatusExist Status = "exist"
)

// LevelError reports which rank failed to resolve.
type LevelError struct {
	Rank Rank
	Name string
	Err  error
}

func (e *LevelError) Error() string {
	return fmt.Sprintf("resolve %s %q: %v", e.Rank, e.Name, e.Err)
}

func (e *LevelError) Unwrap() error {
	return e.Err
}

// Options configures a Resolver.
type Options struct {
	Levels             []Level
	ImagesDir          string
	FallbackShotTypeID string
	// LookupFirst searches for an existing node by parent and name before
	// creating one, so repeated runs never rely on server-side idempotency.
	LookupFirst bool
}

// Result describes one resolved record.
type Result struct {
	Taxonomy Resolved
	ShotType ShotTypeMatch
	ImageID  string
	Status   Status
	Dir      string
	File     string
}

// Path is the full destination path of the image file.
func (r Result) Path() string {
	return filepath.Join(r.Dir, r.File)
}

// Resolver walks the level table for each record. It is not safe for
// concurrent use.
type Resolver struct {
	api       API
	opts      Options
	shotTypes *shotTypeIndex
}

// NewResolver validates opts and returns a Resolver. Nil Levels means
// DefaultLevels; an empty fallback id means DefaultFallbackID.
func NewResolver(api API, opts Options) (*Resolver, error) {
	if api == nil {
		return nil, errors.New("taxonomy API client is required")
	}
	if opts.Levels == nil {
		opts.Levels = DefaultLevels
	}
	if err := ValidateLevels(opts.Levels); err != nil {
		return nil, err
	}
	if opts.FallbackShotTypeID == "" {
		opts.FallbackShotTypeID = DefaultFallbackID
	}
	return &Resolver{api: api, opts: opts}, nil
}

// Levels returns the level table in use.
func (r *Resolver) Levels() []Level {
	return r.opts.Levels
}

// Resolve produces the taxonomy chain, the image id and the destination for
// rec. Nodes created before a failure are left in place; they are shared
// between records and reused by the next one.
func (r *Resolver) Resolve(ctx context.Context, rec manifest.Record) (*Result, error) {
	chain, err := r.ResolveTaxonomy(ctx, rec)
	if err != nil {
		return nil, err
	}

	shot, err := r.resolveShotType(ctx, rec.ShotType)
	if err != nil {
		return nil, err
	}

	imageID, status, err := r.resolveImage(ctx, chain.Leaf().ID, shot.ID, rec.FileName)
	if err != nil {
		return nil, err
	}

	dir, file := Destination(r.opts.ImagesDir, chain, shot.Key, imageID, rec.FileName)
	slog.Debug("Resolved record",
		"row", rec.Row,
		"file", rec.FileName,
		"taxonomy", chain.IDs(),
		"shot_type", shot.ID,
		"image_id", imageID,
		"status", status)

	return &Result{
		Taxonomy: chain,
		ShotType: shot,
		ImageID:  imageID,
		Status:   status,
		Dir:      dir,
		File:     file,
	}, nil
}

// ResolveTaxonomy gets or creates every level of rec's hierarchy in order.
// Each payload carries the id resolved at the previous level.
func (r *Resolver) ResolveTaxonomy(ctx context.Context, rec manifest.Record) (Resolved, error) {
	chain := make(Resolved, 0, len(r.opts.Levels))
	parentID := ""

	for i, level := range r.opts.Levels {
		name := level.NameFor(rec)
		if name == "" {
			return nil, &LevelError{Rank: level.Rank, Err: errors.New("empty name")}
		}

		payload := map[string]any{"name": name}
		query := map[string]string{"name": name}
		if i > 0 {
			payload[level.ParentKey] = idValue(parentID)
			query[level.ParentKey] = parentID
		}

		id, err := r.getOrCreate(ctx, level.Endpoint, query, payload)
		if err != nil {
			return nil, &LevelError{Rank: level.Rank, Name: name, Err: err}
		}

		chain = append(chain, Node{Rank: level.Rank, Name: name, ID: id})
		parentID = id
	}
	return chain, nil
}

func (r *Resolver) getOrCreate(ctx context.Context, endpoint string, query map[string]string, payload map[string]any) (string, error) {
	if r.opts.LookupFirst {
		id, found, err := r.api.Find(ctx, endpoint, query)
		if err != nil {
			return "", err
		}
		if found {
			return id, nil
		}
	}
	return r.api.Create(ctx, endpoint, payload)
}

func (r *Resolver) resolveShotType(ctx context.Context, label string) (ShotTypeMatch, error) {
	if r.shotTypes == nil {
		shotTypes, err := r.api.ImageShotTypes(ctx)
		if err != nil {
			return ShotTypeMatch{}, fmt.Errorf("load image shot types: %w", err)
		}
		r.shotTypes = newShotTypeIndex(shotTypes, r.opts.FallbackShotTypeID)
		slog.Debug("Loaded image shot types", "count", len(shotTypes))
		if !r.shotTypes.hasFallback() {
			slog.Warn("Fallback shot type is not listed by the server", "id", r.opts.FallbackShotTypeID)
		}
	}

	m := r.shotTypes.match(label)
	if m.Defaulted && label != "" {
		slog.Debug("Unknown shot type, using fallback", "shot_type", label, "fallback", m.ID)
	}
	return m, nil
}

func (r *Resolver) resolveImage(ctx context.Context, speciesID, shotTypeID, fileName string) (string, Status, error) {
	if r.opts.LookupFirst {
		id, found, err := r.api.Find(ctx, ImagesEndpoint, map[string]string{
			imageParentKey: speciesID,
			imageURLKey:    fileName,
		})
		if err != nil {
			return "", "", fmt.Errorf("look up image: %w", err)
		}
		if found {
			return id, StatusExist, nil
		}
	}

	id, err := r.api.Create(ctx, ImagesEndpoint, map[string]any{
		imageParentKey:   idValue(speciesID),
		imageShotTypeKey: idValue(shotTypeID),
		imageURLKey:      fileName,
	})
	if err != nil {
		return "", "", fmt.Errorf("create image: %w", err)
	}
	return id, StatusAdded, nil
}

// Destination builds <root>/<id>/.../<shotKey> and <imageID><ext>, where
// ext is the source file's extension as written.
func Destination(root string, chain Resolved, shotKey, imageID, source string) (dir, file string) {
	parts := make([]string, 0, len(chain)+2)
	parts = append(parts, root)
	for _, id := range chain.IDs() {
		parts = append(parts, pathSegment(id))
	}
	parts = append(parts, pathSegment(shotKey))
	return filepath.Join(parts...), pathSegment(imageID) + filepath.Ext(source)
}

// idValue sends integer ids as JSON numbers and anything else as a string.
func idValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
