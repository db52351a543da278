package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kelsos/quickrank/internal/logger"
)

// cvExtensions lists the document types the extraction service accepts.
var cvExtensions = map[string]bool{
	".pdf":  true,
	".doc":  true,
	".docx": true,
	".txt":  true,
	".rtf":  true,
}

// PackCVDirectory zips every CV document below dir into destDir and returns
// the archive path. Hidden files and unsupported extensions are skipped.
func PackCVDirectory(dir, destDir string) (string, error) {
	if destDir == "" {
		destDir = os.TempDir()
	}

	timestamp := time.Now().Format("20060102_150405")
	archivePath := filepath.Join(destDir, fmt.Sprintf("cvs_%s.zip", timestamp))

	zipFile, err := os.Create(archivePath)
	if err != nil {
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	defer zipFile.Close()

	zipWriter := zip.NewWriter(zipFile)

	added := 0
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		ok, err := addToZip(path, info, err, dir, zipWriter)
		if ok {
			added++
		}
		return err
	})
	if closeErr := zipWriter.Close(); err == nil {
		err = closeErr
	}
	if err == nil && added == 0 {
		err = fmt.Errorf("no CV documents found in %s", dir)
	}
	if err != nil {
		zipFile.Close()
		os.Remove(archivePath)
		return "", fmt.Errorf("failed to pack %s: %w", dir, err)
	}

	logger.Info("Packed %d CV files into %s", added, archivePath)
	return archivePath, nil
}

func addToZip(path string, info os.FileInfo, err error, root string, zipWriter *zip.Writer) (bool, error) {
	if err != nil {
		return false, err
	}
	if path == root {
		return false, nil
	}

	relPath, err := filepath.Rel(root, path)
	if err != nil {
		return false, fmt.Errorf("failed to get relative path: %w", err)
	}

	if !ShouldInclude(relPath, info.IsDir()) {
		if info.IsDir() {
			logger.Debug("Skipping directory: %s", relPath)
			return false, filepath.SkipDir
		}
		logger.Debug("Skipping file: %s", relPath)
		return false, nil
	}
	if info.IsDir() {
		return false, nil
	}

	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return false, fmt.Errorf("failed to create file header: %w", err)
	}
	header.Name = filepath.ToSlash(relPath)
	header.Method = zip.Deflate

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return false, fmt.Errorf("failed to create file in zip: %w", err)
	}

	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(writer, file); err != nil {
		return false, fmt.Errorf("failed to copy file contents: %w", err)
	}

	logger.Debug("Added file to archive: %s", relPath)
	return true, nil
}

// ShouldInclude reports whether a path relative to the CV directory belongs
// in the archive.
func ShouldInclude(relPath string, isDir bool) bool {
	for _, component := range strings.Split(relPath, string(filepath.Separator)) {
		if strings.HasPrefix(component, ".") || strings.HasPrefix(component, "__MACOSX") {
			return false
		}
	}
	if isDir {
		return true
	}
	return cvExtensions[strings.ToLower(filepath.Ext(relPath))]
}
