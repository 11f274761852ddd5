package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rahulwagh/aistack/fetcher"
)

const cacheFile = "state.json"

// ErrNoCache is returned by LoadResources when nothing has been recorded yet.
var ErrNoCache = errors.New("state file not found; run 'up' or 'sync' first")

// dirOverride replaces ~/.aistack when set.
var dirOverride string

// SetDir points the ledger at another directory. An empty dir restores the default.
func SetDir(dir string) {
	dirOverride = dir
}

// getCacheDir gets the path to the state directory, creating it if it doesn't exist.
func getCacheDir() (string, error) {
	dir := dirOverride
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		dir = filepath.Join(home, ".aistack")
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", err
	}
	return dir, nil
}

// Path returns the full path of the state file.
func Path() (string, error) {
	dir, err := getCacheDir()
	if err != nil {
		return "", fmt.Errorf("failed to get state directory: %w", err)
	}
	return filepath.Join(dir, cacheFile), nil
}

// SaveResources replaces the whole ledger. The file is written beside the old
// one and renamed so a crash never leaves half a ledger behind.
func SaveResources(resources []fetcher.StandardizedResource) error {
	filePath, err := Path()
	if err != nil {
		return err
	}

	if resources == nil {
		resources = []fetcher.StandardizedResource{}
	}
	data, err := json.MarshalIndent(resources, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal resources to JSON: %w", err)
	}

	tmp := filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("failed to write state file: %w", err)
	}
	if err := os.Rename(tmp, filePath); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	return nil
}

// LoadResources loads the ledger. It returns ErrNoCache when the file does not exist.
func LoadResources() ([]fetcher.StandardizedResource, error) {
	filePath, err := Path()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoCache
		}
		return nil, fmt.Errorf("failed to read state file: %w", err)
	}

	var resources []fetcher.StandardizedResource
	if err := json.Unmarshal(data, &resources); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state data: %w", err)
	}

	return resources, nil
}

// loadOrEmpty treats a missing ledger as an empty one.
func loadOrEmpty() ([]fetcher.StandardizedResource, error) {
	resources, err := LoadResources()
	if errors.Is(err, ErrNoCache) {
		return nil, nil
	}
	return resources, err
}

// ResourcesForStack returns the recorded resources of one stack, in recorded order.
func ResourcesForStack(stack string) ([]fetcher.StandardizedResource, error) {
	resources, err := loadOrEmpty()
	if err != nil {
		return nil, err
	}
	var out []fetcher.StandardizedResource
	for _, r := range resources {
		if belongsToStack(r, stack) {
			out = append(out, r)
		}
	}
	return out, nil
}

// MergeResourcesForStack replaces the entries of one stack with newResources,
// preserving the entries of every other stack.
func MergeResourcesForStack(newResources []fetcher.StandardizedResource, stack string) error {
	existingResources, err := loadOrEmpty()
	if err != nil {
		return fmt.Errorf("failed to load existing state: %w", err)
	}

	var filteredResources []fetcher.StandardizedResource
	for _, resource := range existingResources {
		if !belongsToStack(resource, stack) {
			filteredResources = append(filteredResources, resource)
		}
	}

	filteredResources = append(filteredResources, newResources...)

	return SaveResources(filteredResources)
}

// RemoveResource drops a single entry from the ledger. Removing an unknown entry is a no-op.
func RemoveResource(target fetcher.StandardizedResource) error {
	existingResources, err := loadOrEmpty()
	if err != nil {
		return fmt.Errorf("failed to load existing state: %w", err)
	}

	kept := existingResources[:0]
	for _, resource := range existingResources {
		if resource.SameAs(target) && resource.Stack() == target.Stack() {
			continue
		}
		kept = append(kept, resource)
	}
	return SaveResources(kept)
}

// belongsToStack checks if a resource was recorded for the given stack.
func belongsToStack(resource fetcher.StandardizedResource, stack string) bool {
	if resource.Provider != "aws" {
		return false
	}
	return resource.Stack() == stack
}
