package filetype

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/rs/zerolog/log"
)

// Kind is the processing family of an input.
type Kind string

const (
	KindPDF         Kind = "pdf"
	KindText        Kind = "text"
	KindUnsupported Kind = "unsupported"
)

// FileTypeInfo contains detected file type information
type FileTypeInfo struct {
	MIMEType    string
	Extension   string
	Kind        Kind
	Description string
}

// Supported reports whether the input can be redacted.
func (i *FileTypeInfo) Supported() bool { return i.Kind != KindUnsupported }

// Detector handles file type detection using magic bytes
type Detector struct{}

// New creates a new file type detector
func New() *Detector {
	return &Detector{}
}

// DetectFile detects the type of the file at path using magic bytes, not the filename.
func (d *Detector) DetectFile(path string) (*FileTypeInfo, error) {
	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to detect file type: %w", err)
	}
	return d.info(mtype, path), nil
}

// Detect detects the type of in-memory data. name only refines container formats.
func (d *Detector) Detect(data []byte, name string) *FileTypeInfo {
	return d.info(mimetype.Detect(data), name)
}

// office formats share ZIP and OLE containers; the extension tells them apart
var containerNames = map[string]string{
	".docx": "Microsoft Word document",
	".xlsx": "Microsoft Excel spreadsheet",
	".pptx": "Microsoft PowerPoint presentation",
	".odt":  "OpenDocument text",
	".ods":  "OpenDocument spreadsheet",
	".odp":  "OpenDocument presentation",
	".doc":  "Microsoft Word document (legacy)",
	".xls":  "Microsoft Excel spreadsheet (legacy)",
	".ppt":  "Microsoft PowerPoint presentation (legacy)",
}

func (d *Detector) info(mtype *mimetype.MIME, name string) *FileTypeInfo {
	info := &FileTypeInfo{MIMEType: mtype.String(), Extension: mtype.Extension()}
	log.Debug().Str("mime", info.MIMEType).Str("ext", info.Extension).Str("file", name).Msg("detected file type")

	switch {
	case mtype.Is("application/pdf"):
		info.Kind = KindPDF
		info.Description = "PDF document"
	case strings.HasPrefix(info.MIMEType, "text/"), mtype.Is("application/json"), mtype.Is("application/xml"):
		info.Kind = KindText
		info.Description = "Plain text file"
	case mtype.Is("application/zip"), mtype.Is("application/x-ole-storage"):
		info.Kind = KindUnsupported
		if desc, ok := containerNames[strings.ToLower(filepath.Ext(name))]; ok {
			info.Description = desc + "; convert to PDF first"
		} else {
			info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
		}
	default:
		info.Kind = KindUnsupported
		info.Description = fmt.Sprintf("Unsupported file type: %s", info.MIMEType)
	}
	return info
}
