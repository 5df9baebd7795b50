// Package servers provides the default server set and parsing of server seed files.
package servers

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/Ch00k/georouter/internal/logging"
	"github.com/Ch00k/georouter/internal/router"
)

// File represents the structure of a server seed file
type File struct {
	Servers []Entry `json:"servers"`
}

// Entry is a single server in a seed file
type Entry struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

// Registrar is anything servers can be added to
type Registrar interface {
	AddServer(name string, lat, lon float64) router.Server
}

// Defaults returns the servers a fresh console starts with
func Defaults() []router.Server {
	return []router.Server{
		{Name: "New York", Latitude: 40.7128, Longitude: -74.0060},
		{Name: "London", Latitude: 51.5074, Longitude: -0.1278},
		{Name: "Tokyo", Latitude: 35.6895, Longitude: 139.6917},
	}
}

// ParseFile reads and parses a server seed file
func ParseFile(path string) ([]router.Server, error) {
	return ParseFileWithLogLevel(path, logging.LogLevelError)
}

// ParseFileWithLogLevel reads and parses a server seed file with logging support
func ParseFileWithLogLevel(path string, logLevel logging.LogLevel) ([]router.Server, error) {
	if logLevel <= logging.LogLevelDebug {
		log.Printf("Reading servers file from: %s", path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if logLevel <= logging.LogLevelError {
			log.Printf("Failed to read servers file at %s: %v", path, err)
		}
		return nil, fmt.Errorf("failed to read servers file: %w", err)
	}

	var file File
	if err := json.Unmarshal(data, &file); err != nil {
		if logLevel <= logging.LogLevelError {
			log.Printf("Failed to parse JSON from servers file: %v", err)
		}
		return nil, fmt.Errorf("failed to parse servers file: %w", err)
	}

	result := make([]router.Server, 0, len(file.Servers))
	for i, entry := range file.Servers {
		if entry.Name == "" {
			return nil, fmt.Errorf("server #%d in %s has no name", i+1, path)
		}
		if entry.Latitude == nil || entry.Longitude == nil {
			return nil, fmt.Errorf("server %q in %s is missing latitude or longitude", entry.Name, path)
		}
		result = append(result, router.Server{
			Name:      entry.Name,
			Latitude:  *entry.Latitude,
			Longitude: *entry.Longitude,
		})
	}

	if logLevel <= logging.LogLevelInfo {
		log.Printf("Parsed servers file: %d servers", len(result))
	}

	return result, nil
}

// Register adds servers to r in order
func Register(r Registrar, list []router.Server) {
	for _, s := range list {
		r.AddServer(s.Name, s.Latitude, s.Longitude)
	}
}
