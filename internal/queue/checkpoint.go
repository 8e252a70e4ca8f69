package queue

import (
	"encoding/json"
	"os"
	"path/filepath"

	"postfetcher/pkg/logger"
)

// FileSnapshot keeps the queue and max-id snapshots as JSON files on disk.
// It is the fallback when no redis is configured. Writes go through a
// single worker goroutine so snapshot saves never block the fetch path.
type FileSnapshot struct {
	dir        string
	writeQueue chan fileWrite
}

type fileWrite struct {
	name string
	data []byte
}

func NewFileSnapshot(dir string) (*FileSnapshot, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	fs := &FileSnapshot{
		dir:        dir,
		writeQueue: make(chan fileWrite, 100),
	}
	go fs.writeWorker()
	return fs, nil
}

func (fs *FileSnapshot) writeWorker() {
	for op := range fs.writeQueue {
		tmp := filepath.Join(fs.dir, op.name+".tmp")
		final := filepath.Join(fs.dir, op.name)
		if err := os.WriteFile(tmp, op.data, 0644); err != nil {
			logger.Logger.Printf("Error writing checkpoint %s: %v", op.name, err)
			continue
		}
		if err := os.Rename(tmp, final); err != nil {
			logger.Logger.Printf("Error replacing checkpoint %s: %v", op.name, err)
		}
	}
}

func (fs *FileSnapshot) save(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	fs.writeQueue <- fileWrite{name: name, data: data}
	return nil
}

func (fs *FileSnapshot) load(name string, v interface{}) error {
	data, err := os.ReadFile(filepath.Join(fs.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return json.Unmarshal(data, v)
}

func (fs *FileSnapshot) SaveQueue(snap Snapshot) error {
	return fs.save("queue_checkpoint.json", snap)
}

func (fs *FileSnapshot) LoadQueue() (Snapshot, error) {
	snap := Snapshot{}
	err := fs.load("queue_checkpoint.json", &snap)
	return snap, err
}

func (fs *FileSnapshot) SaveMaxIDs(maxIDs map[string]int) error {
	return fs.save("max_ids_checkpoint.json", maxIDs)
}

func (fs *FileSnapshot) LoadMaxIDs() (map[string]int, error) {
	maxIDs := map[string]int{}
	err := fs.load("max_ids_checkpoint.json", &maxIDs)
	return maxIDs, err
}
