package vault

import (
	"bytes"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	// Register decoders so attachment probing can size the payloads the
	// providers actually return.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"noteposter/core"
	"noteposter/logging"
)

// Writer persists generated images into the vault and links them back
// into the originating note. All failures surface as
// GENERATION_FAILED/retryable=false; the file system is not a transient
// dependency.
type Writer struct {
	vault Vault
	log   *logging.Logger
	now   func() time.Time
}

// NewWriter creates a storage writer over a vault.
func NewWriter(v Vault, log *logging.Logger) *Writer {
	if log == nil {
		log = logging.NewNopLogger()
	}
	return &Writer{vault: v, log: log.Named("storage"), now: time.Now}
}

// SaveImage writes image bytes under the attachment folder and returns
// the vault-relative path written.
//
// Naming is deterministic: poster-<note-stem>-<timestamp><ext>, with a
// -N counter suffix on collision so an existing unrelated file is never
// overwritten. attachmentFolder starting with "./" is resolved relative
// to the note's own folder; anything else is vault-relative.
func (w *Writer) SaveImage(data []byte, mimeType, notePath, attachmentFolder string) (string, error) {
	if len(data) == 0 {
		return "", core.ErrGenerationFailed("no image bytes to save", "")
	}

	folder := resolveAttachmentFolder(notePath, attachmentFolder)
	if err := w.vault.EnsureFolder(folder); err != nil {
		return "", core.ErrGenerationFailed("cannot create attachment folder", err.Error())
	}

	stem := noteStem(notePath)
	ext := extensionForMime(mimeType)
	base := fmt.Sprintf("poster-%s-%s", stem, w.now().Format("20060102-150405"))

	name := base + ext
	for counter := 1; w.vault.Exists(joinSlash(folder, name)); counter++ {
		name = fmt.Sprintf("%s-%d%s", base, counter, ext)
	}

	path := joinSlash(folder, name)
	written, err := w.vault.WriteBinary(path, data)
	if err != nil {
		return "", core.ErrGenerationFailed("cannot write attachment", err.Error())
	}

	if cfg, _, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		w.log.Info("attachment saved",
			zap.String("path", written),
			zap.Int("bytes", len(data)),
			zap.Int("width", cfg.Width),
			zap.Int("height", cfg.Height))
	} else {
		w.log.Info("attachment saved",
			zap.String("path", written),
			zap.Int("bytes", len(data)))
	}

	return written, nil
}

// EmbedImage appends a markdown embed for imagePath at the end of the
// note, on its own line. End-of-file insertion is the documented policy:
// deterministic and content-preserving.
func (w *Writer) EmbedImage(notePath, imagePath string) error {
	content, err := w.vault.ReadNote(notePath)
	if err != nil {
		return core.ErrGenerationFailed("cannot read note for embedding", err.Error())
	}

	embed := fmt.Sprintf("![%s](%s)", strings.TrimSuffix(filepath.Base(imagePath), filepath.Ext(imagePath)), relativeToNote(notePath, imagePath))

	var b strings.Builder
	b.WriteString(content)
	if content != "" && !strings.HasSuffix(content, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(embed)
	b.WriteString("\n")

	if err := w.vault.WriteNote(notePath, b.String()); err != nil {
		return core.ErrGenerationFailed("cannot update note with embed", err.Error())
	}

	w.log.Info("embed written",
		zap.String("note", notePath),
		zap.String("image", imagePath))
	return nil
}

// resolveAttachmentFolder applies the "./" convention: a leading "./"
// anchors the folder next to the note, otherwise it is vault-relative.
func resolveAttachmentFolder(notePath, attachmentFolder string) string {
	if attachmentFolder == "" {
		return dirSlash(notePath)
	}
	if strings.HasPrefix(attachmentFolder, "./") {
		return joinSlash(dirSlash(notePath), strings.TrimPrefix(attachmentFolder, "./"))
	}
	return attachmentFolder
}

// relativeToNote renders imagePath relative to the note's folder for the
// markdown link, falling back to the vault-relative path.
func relativeToNote(notePath, imagePath string) string {
	rel, err := filepath.Rel(dirSlash(notePath), filepath.FromSlash(imagePath))
	if err != nil {
		return imagePath
	}
	return filepath.ToSlash(rel)
}

// noteStem returns the note filename without folder or extension,
// sanitized for reuse inside an attachment filename.
func noteStem(notePath string) string {
	base := filepath.Base(filepath.FromSlash(notePath))
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	stem = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, stem)
	if stem == "" {
		stem = "note"
	}
	return stem
}

// extensionForMime picks the file extension for a provider MIME type.
func extensionForMime(mimeType string) string {
	switch strings.ToLower(strings.TrimSpace(mimeType)) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "image/gif":
		return ".gif"
	default:
		return ".png"
	}
}

func dirSlash(p string) string {
	dir := filepath.ToSlash(filepath.Dir(filepath.FromSlash(p)))
	if dir == "." {
		return ""
	}
	return dir
}

func joinSlash(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "/")
}
