package idempotency

const prefix = "idem/"

// Key returns the record key for one (owner, idempotency key) pair.
// Format: idem/{owner}/{key}
//
// The owner segment comes first so an owner's records form one contiguous
// range; the caller-supplied key is opaque and copied as-is.
func Key(ownerID, key string) []byte {
	k := make([]byte, 0, len(prefix)+len(ownerID)+1+len(key))
	k = append(k, prefix...)
	k = append(k, ownerID...)
	k = append(k, '/')
	k = append(k, key...)
	return k
}
