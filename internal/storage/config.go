package storage

import (
	"fmt"
	"strings"
)

// S3Config holds the object-storage connection settings. Any S3-compatible
// endpoint works (AWS S3, MinIO).
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
	Region    string
	// BaseURL is the public prefix objects are served under; references are
	// stored relative to it.
	BaseURL string
}

// PublicBaseURL returns BaseURL, or the virtual-hosted AWS URL of the bucket.
func (c *S3Config) PublicBaseURL() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com", c.Bucket, c.Region)
}
