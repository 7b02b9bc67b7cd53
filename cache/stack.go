package cache

import (
	"os"
	"sort"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/depotproject/depot"
)

// Stack composes one local tier with zero or more remote tiers.
// Reads fall through the remotes in priority order; a remote hit is
// copied back into the local tier before it is returned, so subsequent
// reads are local. Writes go to the local tier only (pushes to remotes
// are explicit, via sync.Engine).
type Stack struct {
	local   PathTier
	remotes []Tier
	logger  log.Logger
}

// NewStack builds a Stack. Remotes are sorted by ascending priority;
// ties keep their given order.
func NewStack(local PathTier, remotes []Tier, logger log.Logger) (*Stack, error) {
	if local == nil {
		return nil, depot.ConfigurationError("cache stack needs a local tier")
	}
	if logger == nil {
		logger = log.NewNopLogger()
	}
	sorted := make([]Tier, len(remotes))
	copy(sorted, remotes)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority() < sorted[j].Priority()
	})
	return &Stack{local: local, remotes: sorted, logger: logger}, nil
}

// Local returns the local tier.
func (s *Stack) Local() PathTier { return s.local }

// Remotes returns the remote tiers in read order.
func (s *Stack) Remotes() []Tier { return s.remotes }

// Has is a cheap membership probe against the local tier only.
func (s *Stack) Has(key string) (bool, error) {
	return s.local.Has(key)
}

// HasAnywhere checks the local tier, then each remote in priority
// order, returning the source that has the key.
func (s *Stack) HasAnywhere(key string) (bool, string, error) {
	ok, err := s.local.Has(key)
	if err != nil {
		return false, "", err
	}
	if ok {
		return true, s.local.SourceID(), nil
	}
	for _, r := range s.remotes {
		ok, err := r.Has(key)
		if err != nil {
			s.logger.Log("remote", r.SourceID(), "key", key, "err", err)
			continue
		}
		if ok {
			return true, r.SourceID(), nil
		}
	}
	return false, "", nil
}

// Get returns the local path of the artifact, fetching it from the
// first remote that has it when it is not already local. The copy-back
// goes through the local tier's staged write, so a crash mid-copy
// never leaves a partial artifact visible under Has. Returns the path
// and the source that satisfied the read.
func (s *Stack) Get(key string, progress Progress) (string, string, error) {
	ok, err := s.local.Has(key)
	if err != nil {
		return "", "", err
	}
	if ok {
		return s.local.Path(key), s.local.SourceID(), nil
	}

	for _, r := range s.remotes {
		path, ok, err := s.fetchFrom(r, key, progress)
		if err != nil {
			return "", "", err
		}
		if ok {
			return path, r.SourceID(), nil
		}
	}

	return "", "", depot.NotFoundError("no cache tier has %q", key)
}

// GetPreferring behaves like Get, but tries the remote with the given
// source id before the others, so related artifacts come from the tier
// that served their sibling. An empty or unknown source falls straight
// through to priority order.
func (s *Stack) GetPreferring(key, sourceID string, progress Progress) (string, string, error) {
	ok, err := s.local.Has(key)
	if err != nil {
		return "", "", err
	}
	if ok {
		return s.local.Path(key), s.local.SourceID(), nil
	}

	for _, r := range s.remotes {
		if r.SourceID() != sourceID {
			continue
		}
		path, ok, err := s.fetchFrom(r, key, progress)
		if err != nil {
			return "", "", err
		}
		if ok {
			return path, sourceID, nil
		}
	}
	for _, r := range s.remotes {
		if r.SourceID() == sourceID {
			continue
		}
		path, ok, err := s.fetchFrom(r, key, progress)
		if err != nil {
			return "", "", err
		}
		if ok {
			return path, r.SourceID(), nil
		}
	}

	return "", "", depot.NotFoundError("no cache tier has %q", key)
}

// fetchFrom copies the key from one remote into the local tier. A
// remote that doesn't have the key, or that errors, reports !ok so the
// caller can try the next one; only a failed local copy is fatal.
func (s *Stack) fetchFrom(r Tier, key string, progress Progress) (string, bool, error) {
	rc, size, err := r.Get(key)
	if err != nil {
		if !depot.IsNotFound(err) {
			s.logger.Log("remote", r.SourceID(), "key", key, "err", err)
		}
		return "", false, nil
	}
	_, err = s.local.Put(key, NewProgressReader(rc, size, progress))
	rc.Close()
	if err != nil {
		return "", false, errors.Wrapf(err, "copying %s from %s into local cache", key, r.SourceID())
	}
	return s.local.Path(key), true, nil
}

// Put copies a local file into the local tier. It is idempotent: a
// re-put of a key that is already present is a no-op unless force.
func (s *Stack) Put(localPath, key string, force bool) error {
	if !force {
		ok, err := s.local.Has(key)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	f, err := os.Open(localPath)
	if err != nil {
		return errors.Wrapf(err, "opening %s", localPath)
	}
	defer f.Close()
	_, err = s.local.Put(key, f)
	return err
}

// Remove deletes the key from the local tier. With propagate, removal
// is also attempted on every remote; individual remote failures are
// logged, not fatal.
func (s *Stack) Remove(key string, propagate bool) error {
	if err := s.local.Remove(key); err != nil && !depot.IsNotFound(err) {
		return err
	}
	if !propagate {
		return nil
	}
	for _, r := range s.remotes {
		if err := r.Remove(key); err != nil && !depot.IsNotFound(err) {
			s.logger.Log("remote", r.SourceID(), "key", key, "removing", "failed", "err", err)
		}
	}
	return nil
}

// Path resolves the local-tier location of the key without
// materializing remote content.
func (s *Stack) Path(key string) string {
	return s.local.Path(key)
}
