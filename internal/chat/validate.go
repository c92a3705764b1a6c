package chat

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"roomchat/internal/models"
)

// UploadPathPrefix is where locally stored images are served.
const UploadPathPrefix = "/uploads/"

const (
	MaxTextRunes   = 2000
	MaxImageBytes  = 10 * 1024 * 1024
	maxUserIDLen   = 128
	maxEmojiBytes  = 32
	maxFileNameLen = 255
)

var midPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

func validateRoom(raw string) (models.Room, error) {
	room, ok := models.ParseRoom(raw)
	if !ok {
		return "", invalid("room", "unknown room")
	}
	return room, nil
}

func validateUserID(userID string) error {
	if userID == "" || len(userID) > maxUserIDLen {
		return invalid("userId", "user id is required")
	}
	return nil
}

func validateMID(field, mid string) error {
	if !midPattern.MatchString(mid) {
		return invalid(field, "malformed message id")
	}
	return nil
}

// sanitizeText trims and caps message text.
func sanitizeText(text string) (string, error) {
	cleaned := strings.TrimSpace(text)
	if utf8.RuneCountInString(cleaned) > MaxTextRunes {
		cleaned = string([]rune(cleaned)[:MaxTextRunes])
	}
	if cleaned == "" {
		return "", invalid("text", "message text is empty")
	}
	return cleaned, nil
}

func sanitizeEmoji(emoji string) (string, error) {
	emoji = strings.TrimSpace(emoji)
	if emoji == "" || len(emoji) > maxEmojiBytes {
		return "", invalid("emoji", "emoji is required")
	}
	return emoji, nil
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.TrimSpace(strings.ReplaceAll(name, `\`, "/")))
	if name == "." || name == "/" {
		return ""
	}
	if len(name) > maxFileNameLen {
		name = name[len(name)-maxFileNameLen:]
	}
	return name
}

// validateMediaURL accepts a local upload path, an inline image data URL or a remote http(s) URL.
func validateMediaURL(raw string) error {
	if raw == "" {
		return invalid("mediaPayload", "image payload is required")
	}
	switch {
	case strings.HasPrefix(raw, UploadPathPrefix):
		if path.Clean(raw) != raw || len(raw) == len(UploadPathPrefix) {
			return invalid("mediaPayload", "malformed upload path")
		}
		return nil
	case strings.HasPrefix(strings.ToLower(raw), "data:"):
		if !IsImageMime(strings.SplitN(raw[len("data:"):], ";", 2)[0]) || !strings.Contains(raw, ",") {
			return invalid("mediaPayload", "data url must carry an image")
		}
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return invalid("mediaPayload", "image payload must be an upload path, data url or http(s) url")
	}
	return nil
}

// IsImageMime reports whether mime names an image type.
func IsImageMime(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	return strings.HasPrefix(mime, "image/") && len(mime) > len("image/")
}
