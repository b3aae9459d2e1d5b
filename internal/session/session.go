// Package session holds the state of one synchronization session: the
// save-intercept flags, the last known architecture content and summary,
// and the recently processed document versions.
package session

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("archsync.session")

// VersionStore persists processed document versions. A version is new if it
// is greater than the one recorded for the same uri.
type VersionStore interface {
	MarkVersion(ctx context.Context, session, uri string, version int32, keep int) (bool, error)
}

type fileVersion struct {
	uri     string
	version int32
}

// Session is owned by the coordinator. Nothing in it is global, so two
// workspaces can be synchronized by one process.
type Session struct {
	ID           string
	Architecture string
	Intercept    Intercept

	mu          sync.Mutex
	lastContent string
	lastData    string
	versions    []fileVersion
	keep        int
	store       VersionStore
}

// New starts a session for the given architecture file. keep bounds the
// number of remembered document versions. store may be nil.
func New(architecture string, keep int, store VersionStore) *Session {
	if keep <= 0 {
		keep = 6
	}
	return &Session{
		ID:           uuid.NewString(),
		Architecture: architecture,
		keep:         keep,
		store:        store,
	}
}

func (s *Session) LastContent() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastContent
}

func (s *Session) SetLastContent(content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastContent = content
}

func (s *Session) LastData() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastData
}

// SwapData stores data as the last known summary and reports whether it
// differs from the previous one.
func (s *Session) SwapData(data string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastData == data {
		return false
	}
	s.lastData = data
	return true
}

// IsNewVersion records version for uri and reports whether it is newer
// than what was processed before. The least recently recorded uri is
// forgotten first.
func (s *Session) IsNewVersion(ctx context.Context, uri string, version int32) bool {
	if s.store != nil {
		fresh, err := s.store.MarkVersion(ctx, s.ID, uri, version, s.keep)
		if err == nil {
			return fresh
		}
		log.Warning("version store failed, using memory", "error", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, fv := range s.versions {
		if fv.uri == uri {
			if version <= fv.version {
				return false
			}
			s.versions = append(s.versions[:i], s.versions[i+1:]...)
			s.versions = append(s.versions, fileVersion{uri: uri, version: version})
			return true
		}
	}
	if len(s.versions) >= s.keep {
		s.versions = s.versions[1:]
	}
	s.versions = append(s.versions, fileVersion{uri: uri, version: version})
	return true
}
