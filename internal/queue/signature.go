package queue

import (
	"crypto/md5"
	"encoding/hex"
)

// Signature hashes a handler reference with its serialized arguments. Two
// enqueues of logically identical work in the same group collapse onto one
// row through the unique (group_name, signature) index.
func Signature(handlerRef, argumentsJSON string) string {
	sum := md5.Sum([]byte(handlerRef + argumentsJSON))
	return hex.EncodeToString(sum[:])
}
