package video

import (
	"errors"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ListIcons returns the image files in dir, sorted by name. A missing
// directory is not an error.
func ListIcons(dir string) ([]string, error) {
	if dir == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var icons []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			icons = append(icons, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(icons)
	return icons, nil
}

// PickIcon chooses an icon from the title's CRC-32, so the same title gets
// the same icon on every run.
func PickIcon(title string, icons []string) string {
	if len(icons) == 0 {
		return ""
	}
	return icons[crc32.ChecksumIEEE([]byte(title))%uint32(len(icons))]
}

// AssignIcons picks one icon per unit.
func AssignIcons(units []ContentUnit, icons []string) []string {
	out := make([]string, len(units))
	for i, u := range units {
		out[i] = PickIcon(u.Title, icons)
	}
	return out
}
