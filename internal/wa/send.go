package wa

import (
	"context"
	"fmt"
	"strings"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/binary/proto"
	"go.mau.fi/whatsmeow/types"

	"wablast/internal/media"
	"wablast/internal/model"
)

func sendText(ctx context.Context, c *whatsmeow.Client, jid types.JID, text string) error {
	msg := &proto.Message{Conversation: strptr(text)}
	_, err := c.SendMessage(ctx, jid, msg)
	return err
}

// sendMedia uploads a and sends it as the message kind its MIME type maps to.
// Audio carries no caption on the wire.
func sendMedia(ctx context.Context, c *whatsmeow.Client, jid types.JID, a model.Attachment, caption string) error {
	kind := media.KindOf(a.MimeType)
	up, err := c.Upload(ctx, a.Data, mediaType(kind))
	if err != nil {
		return fmt.Errorf("upload %s: %w", kind, err)
	}
	length := uint64(len(a.Data))
	msg := &proto.Message{}
	switch kind {
	case media.KindImage:
		msg.ImageMessage = &proto.ImageMessage{
			Caption:       optstr(caption),
			Mimetype:      optstr(a.MimeType),
			URL:           optstr(up.URL),
			DirectPath:    optstr(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    &length,
		}
	case media.KindVideo:
		msg.VideoMessage = &proto.VideoMessage{
			Caption:       optstr(caption),
			Mimetype:      optstr(a.MimeType),
			URL:           optstr(up.URL),
			DirectPath:    optstr(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    &length,
		}
	case media.KindAudio:
		msg.AudioMessage = &proto.AudioMessage{
			Mimetype:      optstr(a.MimeType),
			URL:           optstr(up.URL),
			DirectPath:    optstr(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    &length,
		}
	default:
		msg.DocumentMessage = &proto.DocumentMessage{
			Caption:       optstr(caption),
			FileName:      optstr(a.FileName),
			Title:         optstr(a.FileName),
			Mimetype:      optstr(a.MimeType),
			URL:           optstr(up.URL),
			DirectPath:    optstr(up.DirectPath),
			MediaKey:      up.MediaKey,
			FileEncSHA256: up.FileEncSHA256,
			FileSHA256:    up.FileSHA256,
			FileLength:    &length,
		}
	}
	_, err = c.SendMessage(ctx, jid, msg)
	return err
}

func mediaType(k media.Kind) whatsmeow.MediaType {
	switch k {
	case media.KindImage:
		return whatsmeow.MediaImage
	case media.KindVideo:
		return whatsmeow.MediaVideo
	case media.KindAudio:
		return whatsmeow.MediaAudio
	default:
		return whatsmeow.MediaDocument
	}
}

// strptr returns a pointer to the given string (helper for proto messages).
func strptr(s string) *string { return &s }

func optstr(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}
