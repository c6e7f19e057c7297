package payload

import (
	"encoding/base64"
	"strings"

	"github.com/rami-aouinti/shopware-sub000/internal/domain"
)

// InlineThreshold is the largest decoded attachment size kept embedded in the payload.
const InlineThreshold = 256 * 1024

// PartitionAttachments routes attachments by decoded byte size. Content that is not valid
// base64 is measured by its raw length.
func PartitionAttachments(attachments []domain.Attachment) domain.PartitionedAttachment {
	out := domain.PartitionedAttachment{
		Inline:    []domain.InlineAttachment{},
		OutOfBand: []domain.OutOfBandAttachment{},
	}

	for _, attachment := range attachments {
		size := DecodedSize(attachment.Content)
		if size <= InlineThreshold {
			out.Inline = append(out.Inline, domain.InlineAttachment{
				FileName: attachment.FileName,
				Content:  attachment.Content,
			})
			continue
		}

		out.OutOfBand = append(out.OutOfBand, domain.OutOfBandAttachment{
			FileName: attachment.FileName,
			Content:  attachment.Content,
			Size:     size,
		})
	}

	return out
}

// DecodedSize returns the number of bytes content decodes to.
func DecodedSize(content string) int {
	compact := strings.Join(strings.Fields(content), "")
	if decoded, err := base64.StdEncoding.DecodeString(compact); err == nil {
		return len(decoded)
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(compact, "=")); err == nil {
		return len(decoded)
	}
	return len(content)
}
