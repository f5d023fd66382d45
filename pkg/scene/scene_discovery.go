package scene

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// SceneInfo represents a saved scene found in a scene directory
type SceneInfo struct {
	Name        string    `json:"name"`        // Scene name, also the file base name
	DisplayName string    `json:"displayName"` // UI display name
	Width       int       `json:"width"`
	Height      int       `json:"height"`
	SPP         int       `json:"spp"`
	TargetSPP   int       `json:"sppTarget"`
	RenderTime  int64     `json:"renderTime"` // milliseconds
	HasDump     bool      `json:"hasDump"`    // A render dump exists next to the description
	Modified    time.Time `json:"modified"`
}

// ListScenes scans dir for scene descriptions. A missing directory yields an
// empty list; unreadable descriptions are skipped.
func ListScenes(dir string) ([]SceneInfo, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to scan scene directory: %v", err)
	}

	scenes := []SceneInfo{}
	for _, filePath := range files {
		info, err := ReadSceneInfo(filePath)
		if err != nil {
			continue
		}
		scenes = append(scenes, info)
	}

	// Most recently modified first
	sort.Slice(scenes, func(i, j int) bool {
		if !scenes[i].Modified.Equal(scenes[j].Modified) {
			return scenes[i].Modified.After(scenes[j].Modified)
		}
		return scenes[i].Name < scenes[j].Name
	})

	return scenes, nil
}

// ReadSceneInfo extracts the summary of a scene description file
func ReadSceneInfo(filePath string) (SceneInfo, error) {
	filename := filepath.Base(filePath)
	name := strings.TrimSuffix(filename, filepath.Ext(filename))

	stat, err := os.Stat(filePath)
	if err != nil {
		return SceneInfo{}, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return SceneInfo{}, err
	}

	var desc description
	if err := json.Unmarshal(data, &desc); err != nil {
		return SceneInfo{}, fmt.Errorf("%w: %v", ErrSceneFormat, err)
	}

	info := SceneInfo{
		Name:        name,
		DisplayName: titleCase(name),
		Width:       desc.Width,
		Height:      desc.Height,
		SPP:         desc.SPP,
		TargetSPP:   desc.TargetSPP,
		RenderTime:  desc.RenderTime,
		Modified:    stat.ModTime(),
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(filePath), DumpFile(name))); err == nil {
		info.HasDump = true
	}
	return info, nil
}

// titleCase converts a filename-style string to title case
// e.g., "cornell-empty" -> "Cornell Empty"
func titleCase(s string) string {
	// Replace hyphens and underscores with spaces
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")

	// Title case each word
	words := strings.Fields(s)
	for i, word := range words {
		if len(word) > 0 {
			words[i] = strings.ToUpper(word[:1]) + strings.ToLower(word[1:])
		}
	}

	return strings.Join(words, " ")
}
