// Package kvstore is an embeddable key-value store with per-entry TTL
// expiration and whole-snapshot persistence to a single file.
//
// Every operation takes one store-wide lock for its full duration,
// including the snapshot write that follows a mutation, so operations
// are fully serialized with each other and with the background sweep.
//
//	s, err := kvstore.Open(kvstore.Options{Path: "data.json"})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	if err := s.Create("user1", map[string]any{"name": "Ann"}, 60); err != nil {
//		return err
//	}
//	v, err := s.Read("user1") // {"name":"Ann"}
package kvstore
