// Package extract unpacks downloaded module archives into the install
// directory.
//
// Archive members are written under names derived from the module ID, so a
// module installed from a sloppily packed archive still ends up as
// <module>.SQLite3 or <module>.<type>.SQLite3 on disk:
//
//	kjv_2020.SQLite3              -> KJV.SQLite3
//	KJV (1).commentaries.SQLite3  -> KJV.commentaries.SQLite3
//	.ini                          -> KJV.ini
//
// Extraction is staged: members are written to a temporary directory next
// to the destination and only moved into place by [Staged.Commit]. A failed
// extraction, or one that is discarded, leaves the destination untouched.
package extract

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	errs "github.com/matzehuels/mybget/pkg/errors"
)

// Extractor unpacks a downloaded archive into a staging area next to
// destDir. Nothing in destDir changes until the returned [Staged] is
// committed.
type Extractor interface {
	Stage(ctx context.Context, archive, destDir, moduleID string) (*Staged, error)
}

// MaxFileSize bounds a single extracted member.
const MaxFileSize = 2 << 30

// sqliteTypes are the type infixes recognised in SQLite member names, in
// match order.
var sqliteTypes = []string{
	"commentaries", "cross-references", "crossreferences", "devotions",
	"dictionaries_lookup", "dictionaries-lookup", "dictionary",
	"plan", "referencedata", "subheadings",
}

// TargetName returns the name a member is installed under. SQLite databases
// are renamed after the module, keeping a recognised type infix. Hidden
// files get the module ID as prefix. Everything else keeps its name.
func TargetName(member, moduleID string) string {
	lower := strings.ToLower(member)
	if strings.HasSuffix(lower, ".sqlite3") {
		for _, t := range sqliteTypes {
			if strings.Contains(lower, "."+t+".") {
				return moduleID + "." + t + ".SQLite3"
			}
		}
		return moduleID + ".SQLite3"
	}
	if strings.HasPrefix(member, ".") {
		return moduleID + member
	}
	return member
}

// ZipExtractor extracts zip archives. Only the base name of each member is
// used; directory structure inside the archive is flattened.
type ZipExtractor struct{}

// Stage implements [Extractor].
func (ZipExtractor) Stage(ctx context.Context, archive, destDir, moduleID string) (*Staged, error) {
	if err := errs.ValidateModuleName(moduleID); err != nil {
		return nil, err
	}
	zr, err := zip.OpenReader(archive)
	if err != nil {
		if zr != nil {
			zr.Close()
		}
		return nil, errs.Wrap(errs.ErrCodeExtractionFailed, err, "open archive %s", filepath.Base(archive))
	}
	defer zr.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrCodeConfig, err, "create install dir %s", destDir)
	}
	st := &Staged{
		dir:      filepath.Join(destDir, ".mybget-"+uuid.NewString()),
		destDir:  destDir,
		moduleID: moduleID,
	}
	if err := os.Mkdir(st.dir, 0o755); err != nil {
		return nil, errs.Wrap(errs.ErrCodeExtractionFailed, err, "create staging dir")
	}
	if err := st.unpack(ctx, zr); err != nil {
		st.Discard()
		return nil, err
	}
	return st, nil
}

// Staged is an extracted archive waiting to be moved into place.
type Staged struct {
	dir      string
	destDir  string
	moduleID string

	// Files are the base names the archive will occupy in the install
	// directory.
	Files []string
}

func (s *Staged) unpack(ctx context.Context, zr *zip.ReadCloser) error {
	seen := make(map[string]bool)
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return errs.Wrap(errs.ErrCodeExtractionFailed, err, "extract %s", s.moduleID)
		}
		if f.FileInfo().IsDir() || !f.Mode().IsRegular() {
			continue
		}
		base, err := memberName(f.Name)
		if err != nil {
			return err
		}
		target := TargetName(base, s.moduleID)
		if seen[strings.ToLower(target)] {
			return errs.New(errs.ErrCodeExtractionFailed, "archive for %s has two members named %s", s.moduleID, target)
		}
		seen[strings.ToLower(target)] = true
		if err := writeMember(f, filepath.Join(s.dir, target)); err != nil {
			return errs.Wrap(errs.ErrCodeExtractionFailed, err, "extract %s", f.Name)
		}
		s.Files = append(s.Files, target)
	}
	if len(s.Files) == 0 {
		return errs.New(errs.ErrCodeExtractionFailed, "archive for %s contains no files", s.moduleID)
	}
	return nil
}

// Commit moves the staged files into the install directory and removes the
// staging area.
//
// A target that already exists is replaced unless conflict reports it as
// belonging to another module, in which case nothing is moved and the
// error is EXTRACTION_FAILED. Replaced files are restored when a later
// rename fails. conflict may be nil.
func (s *Staged) Commit(conflict func(name string) bool) error {
	defer s.Discard()

	var existing []string
	for _, name := range s.Files {
		fi, err := os.Lstat(filepath.Join(s.destDir, name))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return errs.Wrap(errs.ErrCodeExtractionFailed, err, "inspect %s", name)
		}
		if !fi.Mode().IsRegular() || (conflict != nil && conflict(name)) {
			return errs.New(errs.ErrCodeExtractionFailed,
				"%s would overwrite %s, which belongs to another module", s.moduleID, name)
		}
		existing = append(existing, name)
	}

	backup := filepath.Join(s.dir, ".replaced")
	if len(existing) > 0 {
		if err := os.Mkdir(backup, 0o755); err != nil {
			return errs.Wrap(errs.ErrCodeExtractionFailed, err, "create backup dir")
		}
	}
	var saved, placed []string
	rollback := func() {
		for _, name := range placed {
			os.Remove(filepath.Join(s.destDir, name))
		}
		for _, name := range saved {
			os.Rename(filepath.Join(backup, name), filepath.Join(s.destDir, name))
		}
	}
	for _, name := range existing {
		if err := os.Rename(filepath.Join(s.destDir, name), filepath.Join(backup, name)); err != nil {
			rollback()
			return errs.Wrap(errs.ErrCodeExtractionFailed, err, "set aside %s", name)
		}
		saved = append(saved, name)
	}
	for _, name := range s.Files {
		if err := os.Rename(filepath.Join(s.dir, name), filepath.Join(s.destDir, name)); err != nil {
			rollback()
			return errs.Wrap(errs.ErrCodeExtractionFailed, err, "place %s", name)
		}
		placed = append(placed, name)
	}
	return nil
}

// Discard removes the staging area. It is safe to call after Commit.
func (s *Staged) Discard() error {
	return os.RemoveAll(s.dir)
}

// memberName returns the base name of an archive member, rejecting names
// that would escape the destination.
func memberName(name string) (string, error) {
	clean := path.Clean(strings.ReplaceAll(name, `\`, "/"))
	if path.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, "../") || filepath.VolumeName(clean) != "" {
		return "", errs.New(errs.ErrCodeExtractionFailed, "archive member %q escapes the install directory", name)
	}
	base := path.Base(clean)
	if base == "." || base == "/" || base == "" {
		return "", errs.New(errs.ErrCodeExtractionFailed, "archive member %q has no file name", name)
	}
	return base, nil
}

func writeMember(f *zip.File, dst string) error {
	if f.UncompressedSize64 > MaxFileSize {
		return fmt.Errorf("%s is larger than %d bytes", f.Name, int64(MaxFileSize))
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, MaxFileSize+1)); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
