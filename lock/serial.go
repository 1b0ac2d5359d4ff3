package lock

import (
	"encoding/binary"
	"fmt"
)

// stateBytes is the persisted layout: the 4-byte big-endian state
// word. The queue and owner are live structures and are never
// persisted.
const stateBytes = 4

// MarshalBinary encodes the current state word.
func (m *Mutex) MarshalBinary() ([]byte, error) {
	buf := make([]byte, stateBytes)
	binary.BigEndian.PutUint32(buf, uint32(m.sync.State()))
	return buf, nil
}

// UnmarshalBinary reconstructs the mutex. The persisted state value is
// discarded and the mutex comes back unlocked with an empty queue:
// thread ownership has no stable identity across reconstruction.
func (m *Mutex) UnmarshalBinary(data []byte) error {
	if len(data) != stateBytes {
		return fmt.Errorf("lock: bad mutex state length %d", len(data))
	}
	m.sync = newMutexSync()
	return nil
}
