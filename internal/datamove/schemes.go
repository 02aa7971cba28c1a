package datamove

import (
	"net/url"
	"strings"
)

// Scheme returns the lower-cased scheme of a location, or "" for bare paths.
func Scheme(location string) string {
	u, err := url.Parse(location)
	if err != nil {
		// Hive locations are not always valid URLs (spaces in partition values).
		if i := strings.Index(location, "://"); i > 0 {
			return strings.ToLower(location[:i])
		}
		return ""
	}
	return strings.ToLower(u.Scheme)
}

// IsS3Scheme reports whether scheme names an S3 filesystem.
func IsS3Scheme(scheme string) bool {
	switch strings.ToLower(scheme) {
	case "s3", "s3a", "s3n":
		return true
	}
	return false
}

// IsGCSScheme reports whether scheme names Google Cloud Storage.
func IsGCSScheme(scheme string) bool {
	return strings.EqualFold(scheme, "gs")
}

// IsCloudScheme reports whether scheme names an object store.
func IsCloudScheme(scheme string) bool {
	return IsS3Scheme(scheme) || IsGCSScheme(scheme)
}
