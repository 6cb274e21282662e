package app

import (
	"errors"
	"strconv"
	"time"

	"github.com/GriffinCanCode/toolpad/internal/domain/appdom"
)

var (
	ErrAppNotFound     = &NotFoundError{What: "app"}
	ErrReleaseNotFound = &NotFoundError{What: "release"}
	ErrInvalidVersion  = errors.New("invalid version")
)

// NotFoundError reports a missing record.
type NotFoundError struct {
	What string
	ID   string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.What + " not found"
	}
	return e.What + " " + strconv.Quote(e.ID) + " not found"
}

func (e *NotFoundError) Code() string { return "NOT_FOUND" }

// Is matches any NotFoundError about the same kind of record.
func (e *NotFoundError) Is(target error) bool {
	t, ok := target.(*NotFoundError)
	return ok && t.What == e.What && (t.ID == "" || t.ID == e.ID)
}

// App is an editable application
type App struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
	EditedAt  time.Time `json:"editedAt"`
}

// Release is an immutable snapshot of an app's DOM
type Release struct {
	ID          string      `json:"id"`
	AppID       string      `json:"appId"`
	Version     int         `json:"version"`
	Description string      `json:"description"`
	CreatedAt   time.Time   `json:"createdAt"`
	Snapshot    *appdom.Dom `json:"-"`
}

// Deployment makes a release the live version of an app
type Deployment struct {
	ID        string    `json:"id"`
	AppID     string    `json:"appId"`
	Version   int       `json:"version"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateOptions are the optional inputs of CreateApp.
type CreateOptions struct {
	Dom *appdom.Dom `json:"dom,omitempty"`
}

// UpdateInput holds the editable app fields. Nil fields are left alone.
type UpdateInput struct {
	Name *string `json:"name,omitempty"`
}

// ReleaseInput describes a new release.
type ReleaseInput struct {
	Description string `json:"description"`
}

// Version selects either the editable DOM or a released snapshot. The zero
// value is the editable DOM.
type Version struct {
	Number int
}

// Preview selects the editable DOM.
var Preview = Version{}

// IsPreview reports whether v selects the editable DOM.
func (v Version) IsPreview() bool { return v.Number == 0 }

// ParseVersion accepts "preview" (or an empty string) and positive release
// numbers.
func ParseVersion(s string) (Version, error) {
	if s == "" || s == "preview" {
		return Preview, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return Version{}, ErrInvalidVersion
	}
	return Version{Number: n}, nil
}

func (v Version) String() string {
	if v.IsPreview() {
		return "preview"
	}
	return strconv.Itoa(v.Number)
}

// UnmarshalJSON accepts both "preview" and numbers.
func (v *Version) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' {
		unquoted, err := strconv.Unquote(s)
		if err != nil {
			return ErrInvalidVersion
		}
		s = unquoted
	}
	if s == "null" {
		*v = Preview
		return nil
	}
	parsed, err := ParseVersion(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
