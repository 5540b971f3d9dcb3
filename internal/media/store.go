// Package media resolves template attachment references to files in the media directory.
package media

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"wablast/internal/model"
)

var (
	ErrInvalidName = errors.New("invalid media file name")
	ErrExists      = errors.New("a file with that name already exists")
)

// Kind classifies an attachment for the channel.
type Kind string

const (
	KindImage    Kind = "image"
	KindVideo    Kind = "video"
	KindAudio    Kind = "audio"
	KindDocument Kind = "document"
)

// File describes a stored media file.
type File struct {
	Name    string `json:"name"`
	IsImage bool   `json:"isImage"`
}

// Store reads attachments from a directory.
type Store struct {
	Dir string
}

// Open loads a referenced file. A missing file yields an error matching fs.ErrNotExist.
func (s Store) Open(ref string) (model.Attachment, error) {
	if ref == "" || ref != filepath.Base(ref) {
		return model.Attachment{}, fmt.Errorf("media %q: %w", ref, fs.ErrNotExist)
	}
	data, err := os.ReadFile(filepath.Join(s.Dir, ref))
	if err != nil {
		return model.Attachment{}, fmt.Errorf("media %q: %w", ref, err)
	}
	return model.Attachment{
		FileName: ref,
		MimeType: mimetype.Detect(data).String(),
		Data:     data,
	}, nil
}

// List returns the stored files in name order.
func (s Store) List() ([]File, error) {
	entries, err := os.ReadDir(s.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return []File{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := []File{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		switch ext {
		case ".png", ".jpg", ".jpeg", ".gif", ".webp":
			out = append(out, File{Name: e.Name(), IsImage: true})
		default:
			out = append(out, File{Name: e.Name()})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// KindOf maps a MIME type to the message kind used to deliver it.
func KindOf(mime string) Kind {
	m := mimetype.Lookup(mime)
	for ; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return KindImage
		case strings.HasPrefix(m.String(), "video/"):
			return KindVideo
		case strings.HasPrefix(m.String(), "audio/"):
			return KindAudio
		}
	}
	switch {
	case strings.HasPrefix(mime, "image/"):
		return KindImage
	case strings.HasPrefix(mime, "video/"):
		return KindVideo
	case strings.HasPrefix(mime, "audio/"):
		return KindAudio
	}
	return KindDocument
}

func (s Store) path(name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", ErrInvalidName
	}
	return filepath.Join(s.Dir, name), nil
}

// Save stores r under name, replacing an existing file.
func (s Store) Save(name string, r io.Reader) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Delete removes a file. Missing files are not an error.
func (s Store) Delete(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// Rename moves oldName to newName. The target must not exist.
func (s Store) Rename(oldName, newName string) error {
	from, err := s.path(oldName)
	if err != nil {
		return err
	}
	to, err := s.path(newName)
	if err != nil {
		return err
	}
	if oldName == newName {
		return ErrInvalidName
	}
	if _, err := os.Stat(from); err != nil {
		return fmt.Errorf("media %q: %w", oldName, err)
	}
	if _, err := os.Stat(to); err == nil {
		return ErrExists
	}
	return os.Rename(from, to)
}
