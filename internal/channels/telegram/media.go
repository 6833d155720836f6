package telegram

import (
	"context"
	"fmt"
	"html"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mymmrac/telego"
)

const (
	// defaultMediaMaxBytes matches the Bot API download ceiling.
	defaultMediaMaxBytes int64 = 20 * 1024 * 1024

	downloadMaxRetries = 3

	// docMaxChars caps text extracted from attached documents.
	docMaxChars = 200_000
)

// mediaItem is one downloaded attachment.
type mediaItem struct {
	Type       string // "image", "voice", "audio", "document", "video"
	FilePath   string
	FileName   string
	Transcript string
}

// resolveMedia downloads what the message carries. Voice and audio notes
// are transcribed when a transcriber is configured; video is acknowledged
// but not analysed.
func (a *Adapter) resolveMedia(ctx context.Context, msg *telego.Message) []mediaItem {
	var items []mediaItem
	maxBytes := a.cfg.MediaMaxBytes
	if maxBytes == 0 {
		maxBytes = defaultMediaMaxBytes
	}

	if len(msg.Photo) > 0 {
		// Highest resolution is last.
		photo := msg.Photo[len(msg.Photo)-1]
		if path, err := a.downloadMedia(ctx, photo.FileID, maxBytes); err != nil {
			slog.Warn("photo download failed", "error", err)
		} else {
			items = append(items, mediaItem{Type: "image", FilePath: path})
		}
	}

	if msg.Voice != nil {
		if path, err := a.downloadMedia(ctx, msg.Voice.FileID, maxBytes); err != nil {
			slog.Warn("voice download failed", "error", err)
		} else {
			items = append(items, mediaItem{
				Type:       "voice",
				FilePath:   path,
				Transcript: a.transcribe(ctx, path),
			})
		}
	}

	if msg.Audio != nil {
		if path, err := a.downloadMedia(ctx, msg.Audio.FileID, maxBytes); err != nil {
			slog.Warn("audio download failed", "error", err)
		} else {
			items = append(items, mediaItem{
				Type:       "audio",
				FilePath:   path,
				FileName:   msg.Audio.FileName,
				Transcript: a.transcribe(ctx, path),
			})
		}
	}

	if msg.Document != nil {
		if path, err := a.downloadMedia(ctx, msg.Document.FileID, maxBytes); err != nil {
			slog.Warn("document download failed", "error", err)
		} else {
			items = append(items, mediaItem{
				Type:     "document",
				FilePath: path,
				FileName: msg.Document.FileName,
			})
		}
	}

	if msg.Video != nil || msg.VideoNote != nil || msg.Animation != nil {
		items = append(items, mediaItem{Type: "video"})
	}

	return items
}

func (a *Adapter) transcribe(ctx context.Context, path string) string {
	if a.transcriber == nil {
		return ""
	}
	audio, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	text, err := a.transcriber.Transcribe(ctx, filepath.Base(path), audio)
	if err != nil {
		slog.Warn("transcription failed", "error", err)
		return ""
	}
	return text
}

// downloadMedia fetches a file by id into a temp file, retrying the
// metadata lookup and enforcing the size cap during the copy.
func (a *Adapter) downloadMedia(ctx context.Context, fileID string, maxBytes int64) (string, error) {
	var file *telego.File
	var err error
	for attempt := 1; attempt <= downloadMaxRetries; attempt++ {
		file, err = a.bot.GetFile(ctx, &telego.GetFileParams{FileID: fileID})
		if err == nil {
			break
		}
		if attempt < downloadMaxRetries {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(time.Duration(attempt) * time.Second):
			}
		}
	}
	if err != nil {
		return "", fmt.Errorf("get file info: %w", err)
	}
	if file.FilePath == "" {
		return "", fmt.Errorf("empty file path for %s", fileID)
	}
	if int64(file.FileSize) > maxBytes {
		return "", fmt.Errorf("file too large: %d bytes (max %d)", file.FileSize, maxBytes)
	}

	url := fmt.Sprintf("https://api.telegram.org/file/bot%s/%s", a.cfg.Token, file.FilePath)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("download file: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download failed with status %d", resp.StatusCode)
	}

	ext := filepath.Ext(file.FilePath)
	if ext == "" {
		ext = ".bin"
	}
	tmp, err := os.CreateTemp("", "domo_media_*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer tmp.Close()

	written, err := io.Copy(tmp, io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("save file: %w", err)
	}
	if written > maxBytes {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("file exceeds size cap during download")
	}
	return tmp.Name(), nil
}

// buildMediaTags marks attachments in the message content so the agent
// knows what arrived. Transcripts ride inside the voice/audio tags.
func buildMediaTags(items []mediaItem) string {
	var tags []string
	for _, m := range items {
		switch m.Type {
		case "image":
			tags = append(tags, "<media:image>")
		case "video":
			tags = append(tags, "<media:video> (video content is not analysed, only captions)")
		case "voice", "audio":
			if m.Transcript != "" {
				tags = append(tags, fmt.Sprintf("<media:%s>\n<transcript>%s</transcript>",
					m.Type, html.EscapeString(m.Transcript)))
			} else {
				tags = append(tags, "<media:"+m.Type+">")
			}
		case "document":
			tags = append(tags, "<media:document>")
		}
	}
	return strings.Join(tags, "\n")
}

// textExtensions lists document types worth inlining as text.
var textExtensions = map[string]string{
	".txt":  "text/plain",
	".md":   "text/markdown",
	".csv":  "text/csv",
	".json": "application/json",
	".yaml": "text/yaml",
	".yml":  "text/yaml",
	".xml":  "text/xml",
	".log":  "text/plain",
	".sh":   "text/x-shellscript",
	".py":   "text/x-python",
	".go":   "text/x-go",
	".js":   "text/javascript",
	".ts":   "text/typescript",
	".html": "text/html",
	".sql":  "text/x-sql",
	".toml": "text/x-toml",
}

// extractDocumentContent inlines a text document, truncated and escaped.
// Binary formats get a placeholder so the agent can explain the limit.
func extractDocumentContent(filePath, fileName string) (string, error) {
	ext := strings.ToLower(filepath.Ext(fileName))
	mime, isText := textExtensions[ext]
	if !isText {
		return fmt.Sprintf("[File: %s - binary format, only text files are read]", fileName), nil
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("read file %s: %w", fileName, err)
	}
	content := string(data)
	if len(content) > docMaxChars {
		content = content[:docMaxChars] + "\n... [truncated]"
	}
	return fmt.Sprintf("<file name=%q mime=%q>\n%s\n</file>", fileName, mime, html.EscapeString(content)), nil
}
