package delivery

import "encoding/binary"

// Keyspace layout. All times in index keys are big-endian uint64
// milliseconds so lexicographic iteration is chronological.
//
//	task/{issueID}/{recipient}                 task record (JSON)
//	ready/{execAfterMs}/{issueID}/{recipient}  due index for pending tasks
//	lease/{issueID}/{recipient}                lease record (JSON)
//	leasexp/{expiresAtMs}/{issueID}/{recipient} lease expiry index
//	failed/{issueID}/{recipient}               terminal failure index
//	done/{doneAtMs}/{issueID}/{recipient}      completed buffer (JSON)
const (
	taskPrefix     = "task/"
	readyPrefix    = "ready/"
	leasePrefix    = "lease/"
	leaseExpPrefix = "leasexp/"
	failedPrefix   = "failed/"
	donePrefix     = "done/"
)

func taskKey(ref Ref) []byte {
	return []byte(taskPrefix + ref.String())
}

func leaseKey(ref Ref) []byte {
	return []byte(leasePrefix + ref.String())
}

func failedKey(ref Ref) []byte {
	return []byte(failedPrefix + ref.String())
}

// timedKey builds "{prefix}{8-byte BE ms}{ref}".
func timedKey(prefix string, ms int64, ref Ref) []byte {
	k := make([]byte, 0, len(prefix)+8+len(ref.IssueID)+1+len(ref.Recipient))
	k = append(k, prefix...)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(ms))
	k = append(k, ts[:]...)
	k = append(k, ref.String()...)
	return k
}

func readyKey(execAfterMs int64, ref Ref) []byte {
	return timedKey(readyPrefix, execAfterMs, ref)
}

func leaseExpKey(expiresAtMs int64, ref Ref) []byte {
	return timedKey(leaseExpPrefix, expiresAtMs, ref)
}

func doneKey(doneAtMs int64, ref Ref) []byte {
	return timedKey(donePrefix, doneAtMs, ref)
}

// splitTimedKey recovers the timestamp and ref from a timed index key.
func splitTimedKey(prefix string, key []byte) (int64, Ref, bool) {
	if len(key) < len(prefix)+8 {
		return 0, Ref{}, false
	}
	rest := key[len(prefix):]
	ms := int64(binary.BigEndian.Uint64(rest[:8]))
	ref, err := ParseRef(string(rest[8:]))
	if err != nil {
		return 0, Ref{}, false
	}
	return ms, ref, true
}

// prefixUpperBound returns the smallest key greater than every key with the
// given prefix.
func prefixUpperBound(prefix string) []byte {
	b := []byte(prefix)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 0xff {
			b[i]++
			return b[:i+1]
		}
	}
	return nil
}
