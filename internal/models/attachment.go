package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// AttachmentKind distinguishes media handled by the media host.
type AttachmentKind string

const (
	KindImage AttachmentKind = "image"
	KindVideo AttachmentKind = "video"
)

// ParseAttachmentKind accepts the canonical kinds and the legacy spanish names.
func ParseAttachmentKind(s string) (AttachmentKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image", "imagen":
		return KindImage, nil
	case "video":
		return KindVideo, nil
	}
	return "", fmt.Errorf("unknown attachment kind %q", s)
}

// Attachment is the canonical record of a media file stored on the media host.
type Attachment struct {
	URL          string         `json:"url"`
	PublicID     string         `json:"publicId"`
	OriginalName string         `json:"originalName,omitempty"`
	Size         int64          `json:"size"`
	Duration     *float64       `json:"duration,omitempty"`
	Dimensions   string         `json:"dimensions,omitempty"`
	Kind         AttachmentKind `json:"kind"`
}

// rawAttachment carries every field name the clients have used for attachments.
type rawAttachment struct {
	URL           string   `json:"url"`
	URLCloudinary string   `json:"urlCloudinary"`
	SecureURL     string   `json:"secureUrl"`
	PublicID      string   `json:"publicId"`
	PublicIDSnake string   `json:"public_id"`
	OriginalName  string   `json:"originalName"`
	NombreOrig    string   `json:"nombreOriginal"`
	Size          *int64   `json:"size"`
	Tamano        *int64   `json:"tamaño"`
	Bytes         *int64   `json:"bytes"`
	Duration      *float64 `json:"duration"`
	Duracion      *float64 `json:"duracion"`
	Dimensions    string   `json:"dimensions"`
	AnchoAlto     string   `json:"anchoAlto"`
	Kind          string   `json:"kind"`
	Tipo          string   `json:"tipo"`
	Type          string   `json:"type"`
}

// UnmarshalJSON normalizes the alternate attachment shapes into the canonical one.
func (a *Attachment) UnmarshalJSON(data []byte) error {
	var raw rawAttachment
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := Attachment{
		URL:          firstNonEmpty(raw.URL, raw.URLCloudinary, raw.SecureURL),
		PublicID:     firstNonEmpty(raw.PublicID, raw.PublicIDSnake),
		OriginalName: firstNonEmpty(raw.OriginalName, raw.NombreOrig),
		Dimensions:   firstNonEmpty(raw.Dimensions, raw.AnchoAlto),
	}
	for _, size := range []*int64{raw.Size, raw.Tamano, raw.Bytes} {
		if size != nil {
			out.Size = *size
			break
		}
	}
	if raw.Duration != nil {
		out.Duration = raw.Duration
	} else {
		out.Duration = raw.Duracion
	}

	if kind := firstNonEmpty(raw.Kind, raw.Tipo, raw.Type); kind != "" {
		parsed, err := ParseAttachmentKind(kind)
		if err != nil {
			return err
		}
		out.Kind = parsed
	}

	*a = out
	return nil
}

// Validate checks that an attachment references stored media.
func (a Attachment) Validate() error {
	if a.URL == "" || a.PublicID == "" {
		return errors.New("attachment requires url and publicId")
	}
	if a.Kind != KindImage && a.Kind != KindVideo {
		return fmt.Errorf("attachment %s has no valid kind", a.PublicID)
	}
	return nil
}

// Attachments is stored as a JSONB array.
type Attachments []Attachment

// Value implements driver.Valuer.
func (a Attachments) Value() (driver.Value, error) {
	if a == nil {
		return "[]", nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (a *Attachments) Scan(src any) error {
	var data []byte
	switch v := src.(type) {
	case nil:
		*a = Attachments{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("scan attachments: unsupported type %T", src)
	}
	var out Attachments
	if err := json.Unmarshal(data, &out); err != nil {
		return fmt.Errorf("scan attachments: %w", err)
	}
	if out == nil {
		out = Attachments{}
	}
	*a = out
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
