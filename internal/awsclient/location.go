package awsclient

import (
	"fmt"
	"strings"
)

// ParseLocation splits an s3://, s3a:// or s3n:// location into bucket and
// key. Hive partition locations may carry characters url.Parse rejects, so
// the split is done by hand.
func ParseLocation(location string) (bucket, key string, err error) {
	scheme, rest, ok := strings.Cut(location, "://")
	if !ok {
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}
	switch strings.ToLower(scheme) {
	case "s3", "s3a", "s3n":
	default:
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}

	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" {
		return "", "", fmt.Errorf("s3 location %q has no bucket", location)
	}
	return bucket, key, nil
}
