package model

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strconv"
	"time"

	"github.com/pkg/errors"
)

// IDType is the prefix of a generated identifier.
type IDType string

const (
	IDTypeSession IDType = "sess"
	IDTypeTask    IDType = "task"
)

// IDs look like task_1771722000_a3f2b7c1: prefix, unix seconds, 4 random bytes.
var idPattern = regexp.MustCompile(`^(sess|task)_([0-9]{10})_[0-9a-f]{8}$`)

func GenerateID(idType IDType) (string, error) {
	return newID(idType, time.Now())
}

func newID(idType IDType, at time.Time) (string, error) {
	switch idType {
	case IDTypeSession, IDTypeTask:
	default:
		return "", errors.Errorf("unknown id type %q", idType)
	}
	var suffix [4]byte
	if _, err := rand.Read(suffix[:]); err != nil {
		return "", errors.Wrap(err, "read random id suffix")
	}
	ts := strconv.FormatInt(at.Unix(), 10)
	for len(ts) < 10 {
		ts = "0" + ts
	}
	return string(idType) + "_" + ts + "_" + hex.EncodeToString(suffix[:]), nil
}

func ValidateID(id string) bool {
	return idPattern.MatchString(id)
}

// ParseID splits a generated id into its type and creation time.
func ParseID(id string) (IDType, time.Time, error) {
	m := idPattern.FindStringSubmatch(id)
	if m == nil {
		return "", time.Time{}, errors.Errorf("malformed id %q", id)
	}
	secs, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return "", time.Time{}, errors.Wrapf(err, "id %s timestamp", id)
	}
	return IDType(m[1]), time.Unix(secs, 0), nil
}
