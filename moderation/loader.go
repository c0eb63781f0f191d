package moderation

import (
	"bufio"
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"strings"
)

//go:embed censored/*
var censoredFS embed.FS

var errEmptyWords = fmt.Errorf("no censored words have been found")

// CensoredData carries the result of the loading process including metadata
// for logging.
type CensoredData struct {
	Words     []string
	Languages []string
}

// LoadEmbedded parses the embedded wordlists shipped with the binary.
func LoadEmbedded() (*CensoredData, error) {
	return loadAll(censoredFS, "censored")
}

// loadAll scans the given directory in the FS, identifying .txt files as
// language dictionaries and parsing their contents into a unique word list.
func loadAll(f embed.FS, path string) (*CensoredData, error) {
	entries, err := fs.ReadDir(f, path)
	if err != nil {
		return nil, err
	}

	var languages []string
	uniqueWords := make(map[string]struct{})

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		// Track the language based on the filename (e.g., "fr.txt" -> "fr")
		lang := strings.TrimSuffix(entry.Name(), ".txt")
		languages = append(languages, lang)

		data, err := f.ReadFile(path + "/" + entry.Name())
		if err != nil {
			return nil, err
		}

		// Use a scanner to handle different line endings (\n vs \r\n) correctly
		scanner := bufio.NewScanner(bytes.NewReader(data))
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" {
				uniqueWords[line] = struct{}{}
			}
		}

		if err := scanner.Err(); err != nil {
			return nil, err
		}
	}

	if len(uniqueWords) == 0 {
		return nil, errEmptyWords
	}

	words := make([]string, 0, len(uniqueWords))
	for w := range uniqueWords {
		words = append(words, w)
	}

	return &CensoredData{
		Words:     words,
		Languages: languages,
	}, nil
}
