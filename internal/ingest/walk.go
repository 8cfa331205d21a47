package ingest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"agriguardian/internal/models"
	"agriguardian/internal/parser"
)

// Job is one candidate document and the metadata its chunks inherit.
type Job struct {
	Path string
	Meta map[string]string
}

// Walk discovers documents under root laid out as category/crop/[sub-crop/]files.
// A crop folder holding subfolders is processed per subfolder and its loose files
// are ignored; otherwise its files are taken directly. Deeper folders are recursed.
// Only an unreadable root is an error; unreadable folders below it are logged and skipped.
func Walk(root string) ([]Job, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	categories, err := subdirs(root)
	if err != nil {
		return nil, fmt.Errorf("read documents dir: %w", err)
	}

	var jobs []Job
	for _, category := range categories {
		categoryPath := filepath.Join(root, category)
		crops, err := subdirs(categoryPath)
		if err != nil {
			skipFolder(categoryPath, err)
			continue
		}
		for _, crop := range crops {
			cropPath := filepath.Join(categoryPath, crop)
			nested, err := subdirs(cropPath)
			if err != nil {
				skipFolder(cropPath, err)
				continue
			}
			if len(nested) == 0 {
				nested = []string{""}
			}
			for _, sub := range nested {
				jobs = append(jobs, walkFolder(filepath.Join(cropPath, sub), category, crop)...)
			}
		}
	}
	return jobs, nil
}

func skipFolder(dir string, err error) {
	log.Error().Err(err).Str("dir", dir).Msg("Skipping unreadable folder")
}

func walkFolder(dir, category, crop string) []Job {
	entries, err := os.ReadDir(dir)
	if err != nil {
		skipFolder(dir, err)
		return nil
	}
	var jobs []Job
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			jobs = append(jobs, walkFolder(path, category, crop)...)
			continue
		}
		if !parser.IsSupported(path) {
			continue
		}
		jobs = append(jobs, Job{
			Path: path,
			Meta: map[string]string{
				models.MetaSource: category,
				models.MetaCrop:   crop,
				models.MetaFile:   entry.Name(),
			},
		})
	}
	return jobs
}

func subdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}
