package channels

import "fmt"

// MediaKind is a non-text content type the contact center cannot render.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
	MediaVoice MediaKind = "voice"
	MediaVideo MediaKind = "video"
	MediaFile  MediaKind = "file"
)

// FormatAttachment renders the text fallback forwarded to the contact center
// for a media item. ref is the media URL or the provider's media id.
func FormatAttachment(kind MediaKind, ref string) string {
	switch kind {
	case MediaImage:
		return fmt.Sprintf("User sent an image: %s", ref)
	case MediaAudio:
		return fmt.Sprintf("User sent an audio message: %s", ref)
	case MediaVoice:
		return fmt.Sprintf("User sent a voice message: %s", ref)
	case MediaVideo:
		return fmt.Sprintf("User sent a video: %s", ref)
	default:
		return fmt.Sprintf("User sent a file: %s", ref)
	}
}
