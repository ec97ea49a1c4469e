package server

import (
	"errors"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
)

const (
	dateOnlyLayout = "2006-01-02"
	maxUploadBytes = 10 << 20
)

func parseOptionalInt(value string) (*int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil {
		return nil, err
	}
	return &parsed, nil
}

func parseOptionalSnowflakeID(value string) (*snowflake.ID, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, nil
	}
	parsed, err := snowflake.ParseString(trimmed)
	if err != nil || parsed == 0 {
		return nil, errors.New("invalid_snowflake_id")
	}
	return &parsed, nil
}

// parseDate accepts RFC 3339 or a bare date, which means midnight UTC.
func parseDate(value string) (time.Time, error) {
	trimmed := strings.TrimSpace(value)
	if parsed, err := time.Parse(time.RFC3339, trimmed); err == nil {
		return parsed.UTC(), nil
	}
	if parsed, err := time.Parse(dateOnlyLayout, trimmed); err == nil {
		return parsed, nil
	}
	return time.Time{}, errors.New("invalid_time")
}

func pathID(c *gin.Context, name string) (snowflake.ID, error) {
	id, err := snowflake.ParseString(strings.TrimSpace(c.Param(name)))
	if err != nil || id == 0 {
		return 0, newValidationError(name, "invalid_"+name, "invalid "+name)
	}
	return id, nil
}

func queryCycleID(c *gin.Context) (*snowflake.ID, error) {
	id, err := parseOptionalSnowflakeID(c.Query("cycle_id"))
	if err != nil {
		return nil, newValidationError("cycle_id", "invalid_cycle_id", "invalid cycle_id")
	}
	return id, nil
}

// upload is a free-form document posted as multipart form fields "text"
// and "file".
type upload struct {
	Text     string
	MimeType string
	Data     []byte
}

func readUpload(c *gin.Context) (upload, error) {
	out := upload{Text: strings.TrimSpace(c.PostForm("text"))}

	header, err := c.FormFile("file")
	if err != nil {
		if out.Text == "" {
			return upload{}, newValidationError("file", "required", "text or file is required")
		}
		return out, nil
	}
	if header.Size > maxUploadBytes {
		return upload{}, newValidationError("file", "too_large", "file exceeds 10MB")
	}
	f, err := header.Open()
	if err != nil {
		return upload{}, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
	if err != nil {
		return upload{}, err
	}
	out.Data = data
	out.MimeType = header.Header.Get("Content-Type")
	if out.MimeType == "" {
		out.MimeType = "application/octet-stream"
	}
	return out, nil
}
