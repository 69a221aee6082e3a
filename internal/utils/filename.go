package utils

import (
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
)

// EnsurePDF appends ".pdf" to a stored document URL that lacks it
func EnsurePDF(url string) string {
	if strings.EqualFold(path.Ext(url), ".pdf") {
		return url
	}
	return url + ".pdf"
}

// AttachmentDisposition builds the Content-Disposition header for a PDF download
// named after the entity, e.g. attachment; filename="contract.pdf"
func AttachmentDisposition(entity string) string {
	return fmt.Sprintf("attachment; filename=%q", entity+".pdf")
}

// UploadName generates a unique file name for a stored document
// in the format "entity_ID_XXXXXXXX.pdf"
func UploadName(entity string, id uint) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	if id == 0 {
		return fmt.Sprintf("%s_%s.pdf", entity, suffix)
	}
	return fmt.Sprintf("%s_%d_%s.pdf", entity, id, suffix)
}
