package sbe

import (
	"sync/atomic"

	"github.com/tidwall/gjson"
)

// TemplateKey identifies one message template within a schema.
type TemplateKey struct {
	SchemaID   uint16
	Version    uint16
	TemplateID uint16
}

// TemplateMeta describes one registered template: its human-readable
// name (for logging) and its root block's declared length, which
// cmd/ingestor uses as the root block's size when decoding. Nothing in
// this package compares it against MessageHeader.BlockLength.
type TemplateMeta struct {
	Name        string
	BlockLength uint16
}

// RegistryStats counts registry lookup outcomes.
type RegistryStats struct {
	SchemaMismatch  uint64
	UnknownTemplate uint64
}

// Registry maps (schema_id, version, template_id) triples to template
// metadata, loaded from an external JSON description rather than
// compiled in, so a new exchange's schema can be dropped in without a
// rebuild. Lookup is called from the decode goroutine; Stats is safe to
// call concurrently from a separate stats-reporting goroutine.
type Registry struct {
	templates map[TemplateKey]TemplateMeta
	schemas   map[schemaVersion]struct{}

	schemaMismatch  uint64
	unknownTemplate uint64
}

type schemaVersion struct {
	SchemaID uint16
	Version  uint16
}

// LoadRegistry parses a JSON array of template descriptors:
//
//	[{"schema_id":1,"version":0,"template_id":10,"name":"Trade","block_length":32}, ...]
//
// Malformed entries are skipped; a completely empty or unparsable
// document yields an empty registry rather than an error. The loader is
// fail-open: an ingestion process keeps running on the templates it does
// understand rather than refusing to start over one bad entry.
func LoadRegistry(data []byte) *Registry {
	r := &Registry{
		templates: make(map[TemplateKey]TemplateMeta),
		schemas:   make(map[schemaVersion]struct{}),
	}
	if !gjson.ValidBytes(data) {
		return r
	}

	gjson.ParseBytes(data).ForEach(func(_, entry gjson.Result) bool {
		if !entry.IsObject() {
			return true
		}
		schemaID := entry.Get("schema_id")
		version := entry.Get("version")
		templateID := entry.Get("template_id")
		blockLength := entry.Get("block_length")
		if !schemaID.Exists() || !version.Exists() || !templateID.Exists() {
			return true
		}

		key := TemplateKey{
			SchemaID:   uint16(schemaID.Uint()),
			Version:    uint16(version.Uint()),
			TemplateID: uint16(templateID.Uint()),
		}
		r.templates[key] = TemplateMeta{
			Name:        entry.Get("name").String(),
			BlockLength: uint16(blockLength.Uint()),
		}
		r.schemas[schemaVersion{SchemaID: key.SchemaID, Version: key.Version}] = struct{}{}
		return true
	})
	return r
}

// Lookup resolves a decoded MessageHeader to its TemplateMeta. It
// returns ErrSchemaMismatch when no template under the header's
// (schema_id, version) pair is registered at all, and
// ErrUnknownTemplate when that schema/version is known but this
// particular template_id is not.
func (r *Registry) Lookup(h MessageHeader) (TemplateMeta, error) {
	key := TemplateKey{SchemaID: h.SchemaID, Version: h.Version, TemplateID: h.TemplateID}
	if meta, ok := r.templates[key]; ok {
		return meta, nil
	}
	if _, ok := r.schemas[schemaVersion{SchemaID: h.SchemaID, Version: h.Version}]; !ok {
		atomic.AddUint64(&r.schemaMismatch, 1)
		return TemplateMeta{}, ErrSchemaMismatch
	}
	atomic.AddUint64(&r.unknownTemplate, 1)
	return TemplateMeta{}, ErrUnknownTemplate
}

// Stats returns a snapshot of this registry's lookup counters.
func (r *Registry) Stats() RegistryStats {
	return RegistryStats{
		SchemaMismatch:  atomic.LoadUint64(&r.schemaMismatch),
		UnknownTemplate: atomic.LoadUint64(&r.unknownTemplate),
	}
}

// Len returns the number of registered templates.
func (r *Registry) Len() int { return len(r.templates) }
