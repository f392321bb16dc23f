package export

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// owner is the UID and GID snapshot files are handed to.
type owner struct {
	uid int
	gid int
}

// parseOwner parses "UID:GID". An empty string means no ownership change.
func parseOwner(s string) (*owner, error) {
	if s == "" {
		return nil, nil
	}

	uidPart, gidPart, ok := strings.Cut(s, ":")
	if !ok {
		return nil, fmt.Errorf("invalid owner %q, expected UID:GID", s)
	}

	uid, err := strconv.Atoi(uidPart)
	if err != nil {
		return nil, fmt.Errorf("invalid UID %q: %w", uidPart, err)
	}

	gid, err := strconv.Atoi(gidPart)
	if err != nil {
		return nil, fmt.Errorf("invalid GID %q: %w", gidPart, err)
	}

	return &owner{uid: uid, gid: gid}, nil
}

// chown applies o to path. Failures are ignored: an unprivileged export
// still produces readable snapshots.
func (o *owner) chown(path string) {
	if o == nil {
		return
	}

	_ = os.Chown(path, o.uid, o.gid)
}
