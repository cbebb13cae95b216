// Package submission implements the Submission Service (component H):
// thin use-cases over the Bundle Store for creating, appending to, and
// listing submission bundles, per spec.md §4.H.
package submission

import (
	"github.com/anomaly-lab/jobctl/internal/bundlestore"
	"github.com/anomaly-lab/jobctl/internal/ids"
)

type Service struct {
	Bundles bundlestore.Store
}

func New(bundles bundlestore.Store) *Service {
	return &Service{Bundles: bundles}
}

// Create validates every filename, allocates a fresh submission id, and
// stores the bundle.
func (s *Service) Create(uid string, files map[string][]byte, entrypoint, configFile string, extra map[string]interface{}) (string, error) {
	for name, data := range files {
		if err := bundlestore.ValidateFilename(name, int64(len(data))); err != nil {
			return "", err
		}
	}

	sid := ids.New()
	meta := bundlestore.Metadata{
		UserID:     uid,
		Entrypoint: entrypoint,
		ConfigFile: configFile,
		Extra:      extra,
	}
	if err := s.Bundles.Create(sid, files, meta); err != nil {
		return "", err
	}
	return sid, nil
}

// Append adds a single file to an existing bundle.
func (s *Service) Append(sid, filename string, payload []byte, uid string) error {
	return s.Bundles.Append(sid, filename, payload, uid)
}

// List returns the files recorded against sid, enforcing ownership.
func (s *Service) List(sid, uid string) ([]bundlestore.StoredFile, error) {
	return s.Bundles.List(sid, uid)
}
