// Package registry decodes MyBible registry payloads into module version
// records.
//
// Two schemas exist. Core registries are zip archives holding one JSON
// document with a host table and a list of downloads whose URLs are
// templates over the hosts:
//
//	{"hosts": [{"alias": "mz", "path": "https://mybible.zone/dl/%s"}],
//	 "downloads": [{"abr": "KJV", "des": "King James", "upd": "2020-01-15",
//	                "lng": "en", "siz": "1.2M", "url": ["{mz}KJV.zip"]}]}
//
// Extra registries are plain JSON listing modules with direct URLs:
//
//	{"modules": [{"file_name": "KJV.zip", "download_url": "https://...",
//	              "description": "...", "update_date": "2020-01-15",
//	              "language_code": "en"}]}
//
// Entries missing a required field are skipped. Structurally invalid
// payloads fail with MALFORMED_REGISTRY.
package registry

import (
	"net/url"
	"path"
	"strings"

	"github.com/matzehuels/mybget/pkg/source"
)

// Canonical module types published by core registries.
const (
	TypeBible           = "bible"
	TypeCommentaries    = "commentaries"
	TypeDictionaries    = "dictionaries"
	TypeDevotions       = "devotions"
	TypeCrossReferences = "cross-references"
	TypeSubheadings     = "subheadings"
)

// CoreTypes lists the canonical module types in display order.
var CoreTypes = []string{
	TypeBible, TypeCommentaries, TypeDictionaries,
	TypeDevotions, TypeCrossReferences, TypeSubheadings,
}

var typeAliases = map[string]string{
	"commentary":      TypeCommentaries,
	"dictionary":      TypeDictionaries,
	"devotion":        TypeDevotions,
	"crossreferences": TypeCrossReferences,
	"crossreference":  TypeCrossReferences,
	"cross-reference": TypeCrossReferences,
	"subheading":      TypeSubheadings,
}

// Record is one (module, version, source) tuple. Pointer fields are
// optional and nil when the registry did not provide them.
type Record struct {
	ModuleID    string      `json:"module_id"`
	SourceID    string      `json:"source_id"`
	Kind        source.Kind `json:"kind"`
	Version     string      `json:"version"`
	Title       *string     `json:"title,omitempty"`
	Description *string     `json:"description,omitempty"`
	Language    *string     `json:"language,omitempty"`
	ModuleType  string      `json:"module_type"`
	DownloadURL string      `json:"download_url"`
	FileName    string      `json:"file_name"`
	SizeBytes   *int64      `json:"size_bytes,omitempty"`
}

// ModuleType derives the module type from the file name in a download URL:
// "KJV.commentaries.zip" is "commentaries", a bare "KJV.zip" is a bible.
func ModuleType(downloadURL string) string {
	name := downloadURL
	if u, err := url.Parse(downloadURL); err == nil && u.Path != "" {
		name = u.Path
	}
	name = path.Base(name)
	if dec, err := url.PathUnescape(name); err == nil {
		name = dec
	}
	name = strings.TrimSuffix(name, ".zip")

	i := strings.LastIndexByte(name, '.')
	if i < 0 || i == len(name)-1 {
		return TypeBible
	}
	return NormalizeType(name[i+1:])
}

// NormalizeType lower-cases t and maps singular and unhyphenated spellings
// onto the canonical type names.
func NormalizeType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if canon, ok := typeAliases[t]; ok {
		return canon
	}
	return t
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
