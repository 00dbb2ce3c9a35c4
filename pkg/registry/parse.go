package registry

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"io"
	"strconv"
	"strings"

	errs "github.com/matzehuels/mybget/pkg/errors"
	"github.com/matzehuels/mybget/pkg/source"
)

// maxDocumentSize bounds the decompressed size of a core registry document.
const maxDocumentSize = 256 << 20

// Parse decodes a registry payload of the given kind.
func Parse(sourceID string, data []byte, kind source.Kind) ([]Record, error) {
	switch kind {
	case source.KindCore:
		doc, err := unzipDocument(data)
		if err != nil {
			return nil, errs.Wrap(errs.ErrCodeMalformedRegistry, err, "source %s", sourceID)
		}
		return parseCore(sourceID, doc)
	case source.KindExtra:
		return parseExtra(sourceID, data)
	default:
		return nil, errs.New(errs.ErrCodeMalformedRegistry, "source %s: unknown registry kind %q", sourceID, kind)
	}
}

func unzipDocument(data []byte) ([]byte, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || !strings.HasSuffix(strings.ToLower(f.Name), ".json") {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		doc, err := io.ReadAll(io.LimitReader(rc, maxDocumentSize+1))
		if err != nil {
			return nil, err
		}
		if len(doc) > maxDocumentSize {
			return nil, errs.New(errs.ErrCodeMalformedRegistry, "registry document %s too large", f.Name)
		}
		return doc, nil
	}
	return nil, errs.New(errs.ErrCodeMalformedRegistry, "archive contains no .json document")
}

// text accepts a JSON string or number.
type text string

func (t *text) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = text(s)
		return nil
	}
	if string(b) == "null" {
		*t = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*t = text(n.String())
	return nil
}

type coreDocument struct {
	Hosts []struct {
		Alias string `json:"alias"`
		Path  string `json:"path"`
	} `json:"hosts"`
	Downloads []coreDownload `json:"downloads"`
}

type coreDownload struct {
	Abbreviation text     `json:"abr"`
	File         text     `json:"fil"`
	Description  text     `json:"des"`
	Updated      text     `json:"upd"`
	Language     text     `json:"lng"`
	Size         text     `json:"siz"`
	Title        text     `json:"tit"`
	URLs         []string `json:"url"`
}

func parseCore(sourceID string, doc []byte) ([]Record, error) {
	var d coreDocument
	if err := json.Unmarshal(doc, &d); err != nil {
		return nil, errs.Wrap(errs.ErrCodeMalformedRegistry, err, "source %s", sourceID)
	}

	hosts := make(map[string]string, len(d.Hosts))
	for _, h := range d.Hosts {
		hosts[h.Alias] = h.Path
	}

	var records []Record
	for _, dl := range d.Downloads {
		name := strings.TrimSpace(string(dl.Abbreviation))
		if name == "" || len(dl.URLs) == 0 || dl.Description == "" || dl.Updated == "" {
			continue
		}
		if errs.ValidateModuleName(name) != nil {
			continue
		}
		fileName := strings.TrimSpace(string(dl.File))
		if fileName == "" {
			fileName = name
		}
		for _, tmpl := range dl.URLs {
			u, ok := expandURL(tmpl, hosts)
			if !ok {
				continue
			}
			records = append(records, Record{
				ModuleID:    name,
				SourceID:    sourceID,
				Kind:        source.KindCore,
				Version:     strings.TrimSpace(string(dl.Updated)),
				Title:       optional(string(dl.Title)),
				Description: optional(string(dl.Description)),
				Language:    optional(string(dl.Language)),
				ModuleType:  ModuleType(u),
				DownloadURL: u,
				FileName:    fileName,
				SizeBytes:   parseSize(string(dl.Size)),
			})
		}
	}
	return records, nil
}

// expandURL resolves "{alias}file" against the host table by substituting
// file for %s in the host path.
func expandURL(tmpl string, hosts map[string]string) (string, bool) {
	open := strings.IndexByte(tmpl, '{')
	end := strings.IndexByte(tmpl, '}')
	if open < 0 || end < open {
		return "", false
	}
	hostPath, ok := hosts[tmpl[open+1:end]]
	if !ok {
		return "", false
	}
	return strings.ReplaceAll(hostPath, "%s", tmpl[end+1:]), true
}

type extraDocument struct {
	Modules []extraModule `json:"modules"`
}

type extraModule struct {
	FileName    *text `json:"file_name"`
	DownloadURL *text `json:"download_url"`
	Description *text `json:"description"`
	UpdateDate  *text `json:"update_date"`
	Language    text  `json:"language_code"`
	Title       text  `json:"title"`
	Size        text  `json:"size"`
}

func parseExtra(sourceID string, data []byte) ([]Record, error) {
	var d extraDocument
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, errs.Wrap(errs.ErrCodeMalformedRegistry, err, "source %s", sourceID)
	}

	var records []Record
	for _, m := range d.Modules {
		if m.FileName == nil || m.DownloadURL == nil || m.Description == nil || m.UpdateDate == nil {
			continue
		}
		fileName := strings.TrimSpace(string(*m.FileName))
		name := strings.TrimSuffix(fileName, ".zip")
		dl := strings.TrimSpace(string(*m.DownloadURL))
		if name == "" || dl == "" || errs.ValidateModuleName(name) != nil {
			continue
		}
		records = append(records, Record{
			ModuleID:    name,
			SourceID:    sourceID,
			Kind:        source.KindExtra,
			Version:     strings.TrimSpace(string(*m.UpdateDate)),
			Title:       optional(string(m.Title)),
			Description: optional(string(*m.Description)),
			Language:    optional(string(m.Language)),
			ModuleType:  ModuleType(dl),
			DownloadURL: dl,
			FileName:    name + ".zip",
			SizeBytes:   parseSize(string(m.Size)),
		})
	}
	return records, nil
}

// parseSize reads sizes such as "1048576", "512K", "1.4M" or "2G".
// Unparseable input yields nil.
func parseSize(s string) *int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	s = strings.TrimSuffix(s, "B")
	if s == "" {
		return nil
	}
	mult := 1.0
	switch s[len(s)-1] {
	case 'K':
		mult = 1 << 10
	case 'M':
		mult = 1 << 20
	case 'G':
		mult = 1 << 30
	}
	if mult != 1 {
		s = strings.TrimSpace(s[:len(s)-1])
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || v < 0 {
		return nil
	}
	n := int64(v * mult)
	return &n
}
