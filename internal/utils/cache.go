package utils

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
	"stopplanner.sistper.org/internal/report"
)

// CacheFileName returns the file name a downloaded bundle from source is
// cached under: the prefix, a hash of the source and the extension.
func CacheFileName(prefix, source, ext string) string {
	hash := sha1.Sum([]byte(source))
	return fmt.Sprintf("%s_%s%s", prefix, hex.EncodeToString(hash[:]), ext)
}

// GetLastCachedFile returns the most recently modified file in cacheDir whose
// name starts with prefix.
func GetLastCachedFile(cacheDir, prefix string) (string, error) {
	files, err := os.ReadDir(cacheDir)
	if err != nil {
		return "", err
	}

	var lastModTime time.Time
	var lastModFile string

	for _, file := range files {
		if !file.IsDir() && strings.HasPrefix(file.Name(), prefix) {
			fileInfo, err := file.Info()
			if err != nil {
				return "", err
			}
			if fileInfo.ModTime().After(lastModTime) {
				lastModTime = fileInfo.ModTime()
				lastModFile = file.Name()
			}
		}
	}

	if lastModFile == "" {
		return "", fmt.Errorf("no cached files found with prefix %q", prefix)
	}

	return filepath.Join(cacheDir, lastModFile), nil
}

// EnsureDirectory makes sure dir exists, creating it if necessary.
func EnsureDirectory(dir string) error {
	stat, err := os.Stat(dir)

	if err != nil {
		if os.IsNotExist(err) {
			if err := os.MkdirAll(dir, os.ModePerm); err != nil {
				report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
					Level: sentry.LevelError,
					ExtraContext: map[string]interface{}{
						"dir": dir,
					},
				})
				return err
			}
			return nil
		}
		return err
	}
	if !stat.IsDir() {
		err := fmt.Errorf("%s is not a directory", dir)
		report.ReportErrorWithSentryOptions(err, report.SentryReportOptions{
			Level: sentry.LevelError,
			ExtraContext: map[string]interface{}{
				"dir": dir,
			},
		})
		return err
	}
	return nil
}
