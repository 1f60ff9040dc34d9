package chat

import "github.com/hrygo/callsight/store"

type dedupKey struct {
	role    string
	content string
}

// SelectNew returns the messages of batch that are not yet durable.
//
// Identity is (role, content) with occurrence counting: the n-th occurrence
// of a key within the batch is admitted only when the store holds fewer than
// n messages with that key. Repeated saves of the same batch insert nothing,
// while a legitimately repeated message ("thanks", later "thanks" again) is
// kept. Parts are not part of the key. Batch order is preserved.
func SelectNew(durable []*store.ChatMessageKey, batch []Message) []Message {
	if len(batch) == 0 {
		return []Message{}
	}

	stored := make(map[dedupKey]int, len(durable))
	for _, key := range durable {
		stored[dedupKey{role: string(key.Role), content: key.Content}]++
	}

	seen := make(map[dedupKey]int, len(batch))
	fresh := make([]Message, 0, len(batch))
	for _, msg := range batch {
		key := dedupKey{role: msg.Role, content: msg.Content}
		seen[key]++
		if seen[key] > stored[key] {
			fresh = append(fresh, msg)
		}
	}
	return fresh
}
