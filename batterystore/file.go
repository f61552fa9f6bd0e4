package batterystore

import (
	"encoding/json"
	"os"
	"sync"
	"time"
)

// fileState is the JSON layout of the state file.
type fileState struct {
	CurrentCapacity *float64  `json:"mAh,omitempty"`
	MaxCapacity     *float64  `json:"mAhMax,omitempty"`
	LastUpdated     time.Time `json:"last_updated"`
}

// File stores the capacity in a JSON state file. The file is rewritten on
// every change.
type File struct {
	mu    sync.Mutex
	path  string
	state fileState
}

// OpenFile loads the state file at path if it exists. A missing or
// unreadable file starts with no stored values.
func OpenFile(path string) *File {
	f := &File{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Could not read battery state file: %v", err)
		}
		return f
	}
	if err := json.Unmarshal(data, &f.state); err != nil {
		log.Printf("Could not parse battery state file: %v", err)
		f.state = fileState{}
	}
	return f
}

func (f *File) save() {
	f.state.LastUpdated = time.Now()
	data, err := json.MarshalIndent(f.state, "", "  ")
	if err != nil {
		log.Printf("Failed to marshal battery state: %v", err)
		return
	}
	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		log.Printf("Failed to save battery state: %v", err)
		return
	}
	if err := os.Rename(tmp, f.path); err != nil {
		log.Printf("Failed to save battery state: %v", err)
	}
}

func valueOr(v *float64, def float64) float64 {
	if v == nil {
		return def
	}
	return *v
}

func (f *File) LastCapacity(def float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return valueOr(f.state.CurrentCapacity, def)
}

func (f *File) SetLastCapacity(mAh float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.CurrentCapacity = &mAh
	f.save()
}

func (f *File) MaxCapacity(def float64) float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return valueOr(f.state.MaxCapacity, def)
}

func (f *File) SetMaxCapacity(mAh float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.state.MaxCapacity = &mAh
	f.save()
}
