package queue

import (
	"errors"
	"fmt"
	"net/url"
	"path"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// MaxUploadBytes is the largest accepted audio file
const MaxUploadBytes = 500 * 1024 * 1024

// AudioExtensions lists the accepted audio file extensions
var AudioExtensions = []string{".wav", ".mp3", ".flac", ".aiff", ".m4a", ".ogg"}

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	// uuid.UUID is an array, so "required" is spelled out for it
	_ = validate.RegisterValidation("uuid_set", func(fl validator.FieldLevel) bool {
		id, ok := fl.Field().Interface().(uuid.UUID)
		return ok && id != uuid.Nil
	})
	_ = validate.RegisterValidation("audio_ext", func(fl validator.FieldLevel) bool {
		return isAudioURL(fl.Field().String())
	})
}

// isAudioURL reports whether the URL path ends in an accepted audio extension
func isAudioURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	ext := strings.ToLower(path.Ext(u.Path))
	for _, allowed := range AudioExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// SubmitCommand creates a pending submission
type SubmitCommand struct {
	EventID       uuid.UUID `json:"event_id" validate:"uuid_set"`
	ArtistName    string    `json:"artist_name" validate:"required,max=255"`
	TrackTitle    string    `json:"track_title" validate:"required,max=255"`
	FileURL       string    `json:"file_url" validate:"required,url,audio_ext"`
	FileSizeBytes *int64    `json:"file_size_bytes,omitempty" validate:"omitempty,gt=0,lte=524288000"`
	TipCents      int       `json:"tip_cents" validate:"gte=0"`
}

// ApproveCommand moves a pending submission into the queue
type ApproveCommand struct {
	SubmissionID uuid.UUID `json:"submission_id" validate:"uuid_set"`
}

// PlayCommand makes an approved submission the one playing
type PlayCommand struct {
	SubmissionID uuid.UUID `json:"submission_id" validate:"uuid_set"`
	EventID      uuid.UUID `json:"event_id" validate:"uuid_set"`
}

// SkipCommand removes an approved or playing submission from the queue
type SkipCommand struct {
	SubmissionID uuid.UUID `json:"submission_id" validate:"uuid_set"`
}

// ReorderCommand renumbers the approved submissions of an event
type ReorderCommand struct {
	EventID       uuid.UUID   `json:"event_id" validate:"uuid_set"`
	SubmissionIDs []uuid.UUID `json:"submission_ids" validate:"required,min=1,unique,dive,uuid_set"`
}

// normalize trims display strings so whitespace-only values fail validation
func (c *SubmitCommand) normalize() {
	c.ArtistName = strings.TrimSpace(c.ArtistName)
	c.TrackTitle = strings.TrimSpace(c.TrackTitle)
	c.FileURL = strings.TrimSpace(c.FileURL)
}

// validateCommand runs struct validation and converts failures into a validation error
func validateCommand(cmd any) error {
	err := validate.Struct(cmd)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return newError(KindValidation, "invalid request", err)
	}

	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s failed on '%s'", fe.Field(), describeTag(fe.Tag())))
	}
	return newError(KindValidation, strings.Join(fields, "; "), err)
}

func describeTag(tag string) string {
	if tag == "uuid_set" {
		return "required"
	}
	return tag
}
