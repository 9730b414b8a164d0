package ingest

import "context"

// VisionCaptioner describes image bytes in natural language. It is used by
// the image and PDF processors to give an image real textual content when
// OCR can't — a photo, diagram, or chart with little or no machine-readable
// text. Defined here rather than imported from the llm package so ingest
// doesn't need to know how captioning is implemented.
type VisionCaptioner interface {
	Caption(ctx context.Context, imageData []byte, mimeType string) (string, error)
}

// captionOCRThreshold mirrors the OCR-substantiality threshold the
// embedding manager uses to route IMAGE chunks: below it, OCR alone isn't
// enough description for the chunk, so a caption is worth the extra call.
const captionOCRThreshold = 20

func mimeTypeForFormat(format string) string {
	switch format {
	case "jpeg", "jpg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	default:
		return "image/png"
	}
}
