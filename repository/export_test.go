package repository

// SetRaw stores bytes as-is, bypassing encoding.
func (s *MemorySessionStore) SetRaw(data []byte) {
	s.mu.Lock()
	s.data = data
	s.mu.Unlock()
}
